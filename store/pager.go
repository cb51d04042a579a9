package store

import (
	"context"
	"io"
	"sync"
)

// SlicePager serves a materialized slice in pages of fixed size.
type SlicePager[T any] struct {
	mu       sync.Mutex
	items    []T
	pageSize int
	offset   int
}

// NewSlicePager creates a pager over items. Non-positive pageSize serves everything as a single page.
func NewSlicePager[T any](items []T, pageSize int) *SlicePager[T] {
	if pageSize <= 0 {
		pageSize = len(items)
	}
	return &SlicePager[T]{items: items, pageSize: pageSize}
}

func (p *SlicePager[T]) NextPage(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.offset >= len(p.items) {
		return nil, io.EOF
	}
	end := p.offset + p.pageSize
	if end > len(p.items) || p.pageSize == 0 {
		end = len(p.items)
	}
	page := p.items[p.offset:end]
	p.offset = end
	return page, nil
}

// PagerFunc adapts a function to Pager.
type PagerFunc[T any] func(ctx context.Context) ([]T, error)

func (f PagerFunc[T]) NextPage(ctx context.Context) ([]T, error) {
	return f(ctx)
}
