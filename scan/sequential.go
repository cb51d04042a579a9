package scan

import (
	"context"
	"time"

	"github.com/ab180/partscan/metric"
	"github.com/ab180/partscan/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Sequential runs a query once against the whole store, leaving the
// cross-partition fan-out to the store itself.
type Sequential struct {
	Store store.Store
}

func (s Sequential) Run(ctx context.Context, q string) (Result, error) {
	repo := metric.NewRepository()

	startedAt := time.Now()
	p, err := s.Store.Query(ctx, q, store.WholeStore)
	if err != nil {
		return Result{}, errors.Wrap(err, "issue cross-partition query")
	}
	items, err := drain(ctx, p, repo)
	if err != nil {
		return Result{}, errors.Wrap(err, "read cross-partition query")
	}
	elapsed := time.Since(startedAt)
	repo.SetMetric(elapsedMetric, elapsed.Milliseconds())

	log.Debug().
		Int("items", len(items)).
		Dur("elapsed", elapsed).
		Msg("sequential scan finished")

	return Result{
		Items:   items,
		Elapsed: elapsed,
		Metrics: repo.Collect(),
	}, nil
}
