package scan

import (
	"context"
	"sync"
	"time"

	"github.com/ab180/partscan/internal/errgroup"
	"github.com/ab180/partscan/metric"
	"github.com/ab180/partscan/query"
	"github.com/ab180/partscan/store"
	"github.com/rs/zerolog/log"
)

// Parallel runs one query per feed range concurrently and merges the results on the client.
type Parallel struct {
	Store   store.Store
	Options Options
}

// Run fans the query out to the given ranges. The ranges are expected to be
// enumerated beforehand, so enumeration is not included in the elapsed time.
// When any partition fails, the whole run fails with a *PartitionError.
func (p Parallel) Run(ctx context.Context, q string, kind query.Kind, ranges []store.FeedRange) (Result, error) {
	var (
		mu        sync.Mutex
		completed = make([]store.Items, 0, len(ranges))
		stats     = make([]PartitionStat, 0, len(ranges))
		metrics   = make(metric.Metrics)
	)

	startedAt := time.Now()
	wg, wctx := errgroup.WithContext(ctx)
	wg.SetLimit(p.Options.Concurrency)
	for _, r := range ranges {
		r := r
		wg.Go(func() error {
			metric.RunningPartitionTasksGauge.Inc()
			defer metric.RunningPartitionTasksGauge.Dec()

			taskStartedAt := time.Now()
			pager, err := p.Store.Query(wctx, q, store.InRange(r))
			if err != nil {
				return &PartitionError{Range: r, Err: err}
			}
			local := metric.NewRepository()
			items, err := drain(wctx, pager, local)
			if err != nil {
				return &PartitionError{Range: r, Err: err}
			}
			stat := PartitionStat{Range: r, Items: len(items), Elapsed: time.Since(taskStartedAt)}
			local.SetMetric(elapsedMetric, stat.Elapsed.Milliseconds())

			mu.Lock()
			completed = append(completed, items)
			stats = append(stats, stat)
			metrics.Add(local.Collect().WithPrefix(partitionMetricPrefix(r)))
			mu.Unlock()

			log.Debug().
				Stringer("range", r).
				Int("items", stat.Items).
				Dur("elapsed", stat.Elapsed).
				Msg("partition scan finished")
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return Result{}, err
	}
	merged := Merge(kind, completed)
	elapsed := time.Since(startedAt)

	log.Debug().
		Int("partitions", len(ranges)).
		Int("items", len(merged)).
		Dur("elapsed", elapsed).
		Msg("parallel scan finished")

	return Result{
		Items:      merged,
		Elapsed:    elapsed,
		Partitions: stats,
		Metrics:    metrics,
	}, nil
}

// partitionMetricPrefix scopes the counters of a partition task, e.g. "partition.[,8000).items".
func partitionMetricPrefix(r store.FeedRange) string {
	return "partition." + r.String() + "."
}
