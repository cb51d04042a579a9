package partscan

import (
	"context"
	"fmt"

	"github.com/ab180/partscan/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/thoas/go-funk"
)

const seedBatchSize = 100

// Seed writes n sample documents into the store. Ids are stable, so seeding
// twice replaces the documents instead of duplicating them.
func Seed(ctx context.Context, w store.Writer, n int) error {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	for _, batch := range lo.Chunk(ids, seedBatchSize) {
		docs := lo.Map(batch, func(i int, _ int) []byte {
			return SampleDocument(i)
		})
		if err := w.Upsert(ctx, docs...); err != nil {
			return errors.Wrapf(err, "seed documents %d-%d", batch[0], batch[len(batch)-1])
		}
	}
	log.Debug().Int("documents", n).Msg("seeded store")
	return nil
}

// SampleDocument renders the i-th sample document.
func SampleDocument(i int) []byte {
	return []byte(fmt.Sprintf(`{"id":"item-%06d","seq":%d,"label":%q}`, i, i, funk.RandomString(8)))
}
