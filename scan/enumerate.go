package scan

import (
	"context"

	"github.com/ab180/partscan/metric"
	"github.com/ab180/partscan/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ListRanges materializes the current feed ranges of the store.
// The result is never cached, because partitions may split between runs.
func ListRanges(ctx context.Context, st store.Store) ([]store.FeedRange, error) {
	p, err := st.FeedRanges(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "enumerate feed ranges")
	}
	ranges, err := store.Drain(ctx, p)
	if err != nil {
		return nil, errors.Wrap(err, "enumerate feed ranges")
	}
	metric.FeedRangesGauge.Set(float64(len(ranges)))
	log.Debug().Int("count", len(ranges)).Msg("enumerated feed ranges")
	return ranges, nil
}
