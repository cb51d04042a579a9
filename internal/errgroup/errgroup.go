// Package errgroup wraps golang.org/x/sync/errgroup so that a panicking
// goroutine fails the group with an error instead of crashing the process.
package errgroup

import (
	"context"

	"github.com/therne/errorist"
	"golang.org/x/sync/errgroup"
)

// Group is a collection of goroutines working on subtasks of a common task.
// The zero value is a valid Group without a limit on active goroutines.
type Group struct {
	g *errgroup.Group
}

// WithContext returns a new Group and an associated Context derived from ctx.
// The derived Context is canceled the first time a function passed to Go
// returns an error or panics, or the first time Wait returns.
func WithContext(ctx context.Context) (*Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	return &Group{g: g}, gctx
}

func (g *Group) group() *errgroup.Group {
	if g.g == nil {
		g.g = new(errgroup.Group)
	}
	return g.g
}

// SetLimit limits the number of active goroutines in this group to at most n.
// A non-positive n means no limit. It must not be called while goroutines are active.
func (g *Group) SetLimit(n int) {
	if n <= 0 {
		n = -1
	}
	g.group().SetLimit(n)
}

// Go calls the given function in a new goroutine, blocking while the group is at its limit.
func (g *Group) Go(fn func() error) {
	g.group().Go(func() (err error) {
		defer func() {
			if panicErr := errorist.WrapPanic(recover()); panicErr != nil {
				err = panicErr
			}
		}()
		return fn()
	})
}

// Wait blocks until all function calls from the Go method have returned,
// then returns the first non-nil error (if any) from them.
func (g *Group) Wait() error {
	return g.group().Wait()
}
