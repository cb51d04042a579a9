package store

import (
	"context"
	"fmt"
	"io"
)

// Store is a connected, range-partitioned document store.
// A Store is shared read-only by concurrent queries.
type Store interface {
	// FeedRanges returns the current set of feed ranges. The set may change
	// between calls because of partition splits and merges.
	FeedRanges(ctx context.Context) (Pager[FeedRange], error)

	// Query executes the query within given scope.
	Query(ctx context.Context, query string, scope Scope) (Pager[Item], error)

	// Close releases the connection.
	Close() error
}

// Pager yields pages of T until it returns io.EOF.
// Pagers are lazy and finite, and they cannot be restarted.
type Pager[T any] interface {
	NextPage(ctx context.Context) ([]T, error)
}

// Drain reads every page of the pager in arrival order.
func Drain[T any](ctx context.Context, p Pager[T]) ([]T, error) {
	var all []T
	for {
		page, err := p.NextPage(ctx)
		if err == io.EOF {
			return all, nil
		}
		if err != nil {
			return all, err
		}
		all = append(all, page...)
	}
}

// FeedRange identifies one contiguous slice [Min, Max) of the hashed keyspace.
// Bounds are store-issued and should be treated as opaque.
type FeedRange struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

func (r FeedRange) String() string {
	return fmt.Sprintf("[%s,%s)", r.Min, r.Max)
}

// Scope restricts a query to a feed range. The zero value is WholeStore.
type Scope struct {
	Range *FeedRange
}

// WholeStore lets the store route the query to every partition by itself.
var WholeStore = Scope{}

// InRange scopes a query to exactly the given feed range.
func InRange(r FeedRange) Scope {
	return Scope{Range: &r}
}

func (s Scope) IsWholeStore() bool {
	return s.Range == nil
}

func (s Scope) String() string {
	if s.IsWholeStore() {
		return "*"
	}
	return s.Range.String()
}

// Item is a single query result encoded in JSON. It is either a document or a scalar.
type Item []byte

func (i Item) String() string {
	return string(i)
}

// Items is an ordered sequence of query results.
type Items []Item

// Writer is implemented by stores accepting new documents.
type Writer interface {
	Upsert(ctx context.Context, docs ...[]byte) error
}

// Splitter is implemented by stores whose feed ranges can be split on demand.
type Splitter interface {
	Split(ctx context.Context, r FeedRange) error
}
