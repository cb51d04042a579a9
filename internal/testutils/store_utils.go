package testutils

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ab180/partscan/store"
	"github.com/ab180/partscan/store/keyspace"
	"github.com/ab180/partscan/store/memstore"
)

// Document renders a test document with an id and a numeric field n.
func Document(id string, n int) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"n":%d}`, id, n))
}

// PartitionedStore creates an in-memory store with given number of partitions,
// each holding exactly perPartition documents.
func PartitionedStore(partitions, perPartition int, opts ...memstore.Option) *memstore.Store {
	s := memstore.New(append([]memstore.Option{memstore.WithPartitions(partitions)}, opts...)...)

	ranges := keyspace.Even(partitions)
	filled := make([]int, len(ranges))
	remaining := len(ranges) * perPartition
	for i := 0; remaining > 0; i++ {
		id := "doc-" + strconv.Itoa(i)
		h := keyspace.Hash(id)
		for ri, r := range ranges {
			if !keyspace.Contains(r, h) || filled[ri] == perPartition {
				continue
			}
			if err := s.Upsert(context.Background(), Document(id, i)); err != nil {
				panic(err)
			}
			filled[ri]++
			remaining--
		}
	}
	return s
}

func StringValues(items store.Items) (ss []string) {
	for _, item := range items {
		ss = append(ss, item.String())
	}
	return
}
