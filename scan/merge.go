package scan

import (
	"github.com/ab180/partscan/query"
	"github.com/ab180/partscan/store"
	"github.com/samber/lo"
)

// Merge combines per-partition results into a single result.
//
// Aggregate results are summed into one scalar. Every numeric item of every
// partition counts, so a partition yielding zero or several scalars is tolerated.
// Non-numeric items are ignored. Plain results are concatenated; items of
// a partition keep their relative order.
func Merge(kind query.Kind, partials []store.Items) store.Items {
	if kind == query.Aggregate {
		return store.Items{sum(partials)}
	}
	merged := make(store.Items, 0, lo.Reduce(partials, func(n int, p store.Items, _ int) int {
		return n + len(p)
	}, 0))
	for _, p := range partials {
		merged = append(merged, p...)
	}
	return merged
}

func sum(partials []store.Items) store.Item {
	total := query.Int(0)
	for _, p := range partials {
		for _, item := range p {
			if n, ok := query.ParseNumber(item); ok {
				total = total.Add(n)
			}
		}
	}
	return store.Item(total.String())
}
