package memstore

import (
	"time"

	"github.com/ab180/partscan/store"
)

type options struct {
	partitions     int
	pageSize       int
	partitionKey   string
	simulatedDelay time.Duration
	failingRanges  map[store.FeedRange]error
}

func defaultOptions() options {
	return options{
		partitions:   1,
		pageSize:     100,
		partitionKey: "id",
	}
}

// Option configures an in-memory store.
type Option func(o *options)

// WithPartitions sets the number of physical partitions the keyspace is initially split into.
func WithPartitions(n int) Option {
	return func(o *options) {
		o.partitions = n
	}
}

// WithPageSize sets the maximum number of items a page holds.
func WithPageSize(n int) Option {
	return func(o *options) {
		o.pageSize = n
	}
}

// WithPartitionKey sets the top-level document field used to place documents.
func WithPartitionKey(field string) Option {
	return func(o *options) {
		o.partitionKey = field
	}
}

// WithSimulatedDelay delays every page read, emulating network latency.
func WithSimulatedDelay(d time.Duration) Option {
	return func(o *options) {
		o.simulatedDelay = d
	}
}

// WithFailingRange makes every query scoped to the range fail with err.
func WithFailingRange(r store.FeedRange, err error) Option {
	return func(o *options) {
		if o.failingRanges == nil {
			o.failingRanges = make(map[store.FeedRange]error)
		}
		o.failingRanges[r] = err
	}
}
