package etcdstore

import (
	"time"

	"github.com/creasty/defaults"
)

type Options struct {
	DialTimeout time.Duration `default:"5s"`

	// OpTimeout bounds a single etcd request, such as reading one page.
	OpTimeout time.Duration `default:"10s"`

	// PageSize is the maximum number of keys read from etcd at once.
	PageSize int64 `default:"1000"`

	// PartitionKey is the top-level document field used to place documents in the keyspace.
	PartitionKey string `default:"id"`

	// Username is used for authentication with a static key.
	Username string `default:"root"`

	// BatchSize is the maximum number of writes committed in a single transaction.
	BatchSize int `default:"64"`
}

func DefaultOptions() (o Options) {
	if err := defaults.Set(&o); err != nil {
		panic(err)
	}
	return
}
