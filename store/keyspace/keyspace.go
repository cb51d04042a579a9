// Package keyspace maps partition keys onto a 64-bit hashed keyspace and
// describes contiguous slices of it as feed ranges.
//
// Bounds are encoded as 16 lowercase hex digits so that their lexical order
// matches numeric order. An empty Min means the start of the keyspace and an
// empty Max means its end.
package keyspace

import (
	"fmt"
	"math"
	"strconv"

	"github.com/ab180/partscan/store"
	"github.com/pkg/errors"
	"github.com/segmentio/fasthash/fnv1a"
)

// ErrTooNarrow is returned by Split when a range cannot be divided further.
var ErrTooNarrow = errors.New("range too narrow to split")

// Hash places a partition key in the keyspace.
func Hash(partitionKey string) uint64 {
	// uses Fowler–Noll–Vo hash to determine the slot
	return fnv1a.HashString64(partitionKey)
}

// Encode formats a hash as a range bound.
func Encode(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// Full returns a range covering the whole keyspace.
func Full() store.FeedRange {
	return store.FeedRange{}
}

// Even divides the keyspace into n adjacent ranges of roughly equal width.
func Even(n int) []store.FeedRange {
	if n <= 0 {
		return nil
	}
	width := math.MaxUint64 / uint64(n)
	ranges := make([]store.FeedRange, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			ranges[i].Min = Encode(uint64(i) * width)
		}
		if i < n-1 {
			ranges[i].Max = Encode(uint64(i+1) * width)
		}
	}
	return ranges
}

// Contains reports whether the hash falls into the range.
func Contains(r store.FeedRange, h uint64) bool {
	min, max, unbounded, err := bounds(r)
	if err != nil {
		return false
	}
	return h >= min && (unbounded || h < max)
}

// Split divides the range at its midpoint.
func Split(r store.FeedRange) (lower, upper store.FeedRange, err error) {
	min, max, unbounded, err := bounds(r)
	if err != nil {
		return
	}
	var mid uint64
	if unbounded {
		mid = min + (math.MaxUint64-min)/2 + 1
	} else {
		if max <= min {
			err = errors.Errorf("invalid range %s", r)
			return
		}
		mid = min + (max-min)/2
	}
	if mid == min {
		err = ErrTooNarrow
		return
	}
	lower = store.FeedRange{Min: r.Min, Max: Encode(mid)}
	upper = store.FeedRange{Min: Encode(mid), Max: r.Max}
	return
}

func bounds(r store.FeedRange) (min, max uint64, unbounded bool, err error) {
	if r.Min != "" {
		if min, err = strconv.ParseUint(r.Min, 16, 64); err != nil {
			err = errors.Wrapf(err, "parse min bound of %s", r)
			return
		}
	}
	if r.Max == "" {
		unbounded = true
		return
	}
	if max, err = strconv.ParseUint(r.Max, 16, 64); err != nil {
		err = errors.Wrapf(err, "parse max bound of %s", r)
	}
	return
}
