// Package memstore is an in-process range-partitioned document store.
// It behaves like a remote store from the caller's point of view, including
// simulated latency and per-range failures, and is mainly used in tests and demos.
package memstore

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/ab180/partscan/query"
	"github.com/ab180/partscan/store"
	"github.com/ab180/partscan/store/keyspace"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

var (
	ErrClosed        = errors.New("store closed")
	ErrRangeNotFound = errors.New("feed range not found")
)

type document struct {
	id   string
	hash uint64
	raw  []byte
}

type Store struct {
	opt options

	mu     sync.RWMutex
	ranges []store.FeedRange
	docs   map[string]document

	closed atomic.Bool
}

// New creates an empty store whose keyspace is evenly split into the configured number of partitions.
func New(opts ...Option) *Store {
	opt := defaultOptions()
	for _, o := range opts {
		o(&opt)
	}
	if opt.pageSize <= 0 {
		opt.pageSize = defaultOptions().pageSize
	}
	return &Store{
		opt:    opt,
		ranges: keyspace.Even(opt.partitions),
		docs:   make(map[string]document),
	}
}

func (s *Store) simulate(ctx context.Context) error {
	if s.opt.simulatedDelay > 0 {
		timer := time.NewTimer(s.opt.simulatedDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// Upsert inserts or replaces documents. Every document must have a string "id" field.
func (s *Store) Upsert(ctx context.Context, docs ...[]byte) error {
	if err := s.simulate(ctx); err != nil {
		return err
	}
	parsed := make([]document, 0, len(docs))
	for _, raw := range docs {
		id := jsoniter.Get(raw, "id")
		if id.ValueType() != jsoniter.StringValue || id.ToString() == "" {
			return errors.New("document must have a non-empty string id")
		}
		pk := jsoniter.Get(raw, s.opt.partitionKey)
		if pk.LastError() != nil {
			return errors.Errorf("document %s has no partition key %s", id.ToString(), s.opt.partitionKey)
		}
		parsed = append(parsed, document{
			id:   id.ToString(),
			hash: keyspace.Hash(pk.ToString()),
			raw:  append([]byte(nil), raw...),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range parsed {
		s.docs[d.id] = d
	}
	return nil
}

// Split replaces the range with its two halves, like a partition split in a real store.
func (s *Store) Split(ctx context.Context, r store.FeedRange) error {
	if err := s.simulate(ctx); err != nil {
		return err
	}
	lower, upper, err := keyspace.Split(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.ranges {
		if existing == r {
			s.ranges = append(s.ranges[:i], append([]store.FeedRange{lower, upper}, s.ranges[i+1:]...)...)
			return nil
		}
	}
	return errors.Wrapf(ErrRangeNotFound, "split %s", r)
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *Store) FeedRanges(ctx context.Context) (store.Pager[store.FeedRange], error) {
	if err := s.simulate(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	ranges := append([]store.FeedRange(nil), s.ranges...)
	s.mu.RUnlock()
	return store.NewSlicePager(ranges, s.opt.pageSize), nil
}

func (s *Store) Query(ctx context.Context, q string, scope store.Scope) (store.Pager[store.Item], error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	plan, err := query.Compile(q)
	if err != nil {
		return nil, err
	}
	if !scope.IsWholeStore() {
		if err, ok := s.opt.failingRanges[*scope.Range]; ok {
			return store.PagerFunc[store.Item](func(ctx context.Context) ([]store.Item, error) {
				if simErr := s.simulate(ctx); simErr != nil {
					return nil, simErr
				}
				return nil, errors.Wrapf(err, "query %s", scope)
			}), nil
		}
	}
	return &pager{
		store: s,
		plan:  plan,
		docs:  s.snapshot(scope),
	}, nil
}

// snapshot returns documents in the scope ordered by their position in the keyspace.
func (s *Store) snapshot(scope store.Scope) []document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []document
	for _, d := range s.docs {
		if scope.IsWholeStore() || keyspace.Contains(*scope.Range, d.hash) {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].hash != docs[j].hash {
			return docs[i].hash < docs[j].hash
		}
		return docs[i].id < docs[j].id
	})
	return docs
}

func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

type pager struct {
	store  *Store
	plan   *query.Plan
	docs   []document
	offset int
	done   bool
}

func (p *pager) NextPage(ctx context.Context) ([]store.Item, error) {
	if p.done {
		return nil, io.EOF
	}
	if err := p.store.simulate(ctx); err != nil {
		return nil, err
	}
	if p.plan.IsAggregate() {
		p.done = true
		acc := p.plan.NewAccumulator()
		for _, d := range p.docs {
			if err := acc.Add(d.raw); err != nil {
				return nil, errors.Wrapf(err, "aggregate document %s", d.id)
			}
		}
		return acc.Result(), nil
	}

	var page []store.Item
	for p.offset < len(p.docs) && len(page) < p.store.opt.pageSize {
		d := p.docs[p.offset]
		p.offset++
		item, ok, err := p.plan.Project(d.raw)
		if err != nil {
			return nil, errors.Wrapf(err, "project document %s", d.id)
		}
		if ok {
			page = append(page, item)
		}
	}
	if p.offset >= len(p.docs) {
		p.done = true
		if len(page) == 0 {
			return nil, io.EOF
		}
	}
	return page, nil
}

var (
	_ store.Store    = (*Store)(nil)
	_ store.Writer   = (*Store)(nil)
	_ store.Splitter = (*Store)(nil)
)
