package scan

import (
	"context"

	"github.com/ab180/partscan/internal/util"
	"github.com/ab180/partscan/metric"
	"github.com/ab180/partscan/query"
	"github.com/ab180/partscan/store"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Outcome is the result of comparing the sequential and the parallel way of running a query.
// It is built once and never modified afterwards.
type Outcome struct {
	RunID          string
	Query          string
	Kind           query.Kind
	PartitionCount int

	Sequential Result
	Parallel   Result

	// ResultsMatch tells whether both executors returned the same result.
	// Aggregates are compared as numbers, plain results as multisets.
	// The two runs are not isolated from each other, so writes in between can cause a mismatch.
	ResultsMatch bool
}

// Speedup returns sequential elapsed time divided by the parallel one.
// ok is false when there was no partition or the parallel run took no measurable time.
func (o *Outcome) Speedup() (ratio float64, ok bool) {
	if o.PartitionCount == 0 || o.Parallel.Elapsed <= 0 {
		return 0, false
	}
	return float64(o.Sequential.Elapsed) / float64(o.Parallel.Elapsed), true
}

// Improvement returns how much faster the parallel run was, in percent of the sequential run.
func (o *Outcome) Improvement() (percent float64, ok bool) {
	if o.Sequential.Elapsed <= 0 {
		return 0, false
	}
	return float64(o.Sequential.Elapsed-o.Parallel.Elapsed) / float64(o.Sequential.Elapsed) * 100, true
}

// Compare enumerates the feed ranges of the store, then runs the query
// sequentially and in parallel, one after another.
func Compare(ctx context.Context, st store.Store, q string, opt Options) (*Outcome, error) {
	kind := query.Classify(q)
	runID := util.GenerateID("run-")

	ranges, err := ListRanges(ctx, st)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("runID", runID).
		Str("kind", kind.String()).
		Int("partitions", len(ranges)).
		Msg("starting comparison")

	seq, err := Sequential{Store: st}.Run(ctx, q)
	if err != nil {
		return nil, err
	}
	if kind == query.Aggregate {
		seq.Items = Merge(query.Aggregate, []store.Items{seq.Items})
	}
	observe("sequential", kind, seq)

	par, err := Parallel{Store: st, Options: opt}.Run(ctx, q, kind, ranges)
	if err != nil {
		return nil, err
	}
	observe("parallel", kind, par)

	o := &Outcome{
		RunID:          runID,
		Query:          q,
		Kind:           kind,
		PartitionCount: len(ranges),
		Sequential:     seq,
		Parallel:       par,
		ResultsMatch:   Equal(kind, seq.Items, par.Items),
	}
	if !o.ResultsMatch {
		metric.MismatchesCounter.Inc()
		log.Warn().Str("runID", runID).Msg("sequential and parallel results differ")
	}
	return o, nil
}

func observe(executor string, kind query.Kind, r Result) {
	labels := metric.LabelValues(executor, kind.String())
	metric.RunDurationSummary.With(labels).Observe(r.Elapsed.Seconds())
	metric.ItemsCounter.With(labels).Add(float64(r.Metrics[itemsMetric] + r.Metrics.Sum("."+itemsMetric)))
}

// Equal tells whether two results of a query are the same. Aggregate
// results are compared numerically, allowing float rounding differences caused
// by summing partitions in another order. Plain results are compared regardless of order.
func Equal(kind query.Kind, a, b store.Items) bool {
	if kind == query.Aggregate {
		if len(a) != 1 || len(b) != 1 {
			return len(a) == len(b) && len(a) == 0
		}
		x, okX := query.ParseNumber(a[0])
		y, okY := query.ParseNumber(b[0])
		return okX && okY && x.Close(y)
	}
	if len(a) != len(b) {
		return false
	}
	counts := lo.Reduce(a, func(c map[string]int, item store.Item, _ int) map[string]int {
		c[string(item)]++
		return c
	}, make(map[string]int, len(a)))
	for _, item := range b {
		if counts[string(item)] == 0 {
			return false
		}
		counts[string(item)]--
	}
	return true
}
