package scan

import (
	"context"
	"io"
	"time"

	"github.com/ab180/partscan/metric"
	"github.com/ab180/partscan/store"
)

const (
	itemsMetric   = "items"
	pagesMetric   = "pages"
	elapsedMetric = "elapsed_ms"
)

// Result is the output of one executor run.
type Result struct {
	Items   store.Items
	Elapsed time.Duration

	// Partitions is filled by parallel runs only, in completion order.
	Partitions []PartitionStat

	Metrics metric.Metrics
}

// PartitionStat describes a query scoped to a single feed range.
type PartitionStat struct {
	Range   store.FeedRange
	Items   int
	Elapsed time.Duration
}

// drain reads every page of p, counting items and pages into the repository.
func drain(ctx context.Context, p store.Pager[store.Item], repo metric.Repository) (store.Items, error) {
	var items store.Items
	for {
		page, err := p.NextPage(ctx)
		if err == io.EOF {
			return items, nil
		}
		if err != nil {
			return nil, err
		}
		repo.AddMetric(pagesMetric, 1)
		repo.AddMetric(itemsMetric, int64(len(page)))
		items = append(items, page...)
	}
}
