package etcdstore

import (
	"context"
	"io"
	"time"

	"github.com/ab180/partscan/query"
	"github.com/ab180/partscan/store"
	"github.com/pkg/errors"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// keyPager reads keys in [key, end) page by page. Every page after the first
// one is read at the revision of the first page, so the pager sees a single snapshot.
type keyPager[T any] struct {
	kv        clientv3.KV
	key, end  string
	limit     int64
	opTimeout time.Duration
	decode    func(kv *mvccpb.KeyValue) (v T, ok bool, err error)

	rev  int64
	done bool
}

func (p *keyPager[T]) NextPage(ctx context.Context) ([]T, error) {
	for !p.done {
		page, err := p.read(ctx)
		if err != nil {
			return nil, err
		}
		if len(page) > 0 {
			return page, nil
		}
	}
	return nil, io.EOF
}

func (p *keyPager[T]) read(ctx context.Context) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()

	opts := []clientv3.OpOption{
		clientv3.WithRange(p.end),
		clientv3.WithLimit(p.limit),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	}
	if p.rev > 0 {
		opts = append(opts, clientv3.WithRev(p.rev))
	}
	resp, err := p.kv.Get(ctx, p.key, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "read keys from %s", p.key)
	}
	if p.rev == 0 {
		p.rev = resp.Header.Revision
	}
	if !resp.More || len(resp.Kvs) == 0 {
		p.done = true
	} else {
		// continue right after the last key
		p.key = string(resp.Kvs[len(resp.Kvs)-1].Key) + "\x00"
	}

	page := make([]T, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		v, ok, err := p.decode(kv)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", kv.Key)
		}
		if ok {
			page = append(page, v)
		}
	}
	return page, nil
}

// aggregatePager folds every document into a single page holding the aggregated value.
type aggregatePager struct {
	docs *keyPager[[]byte]
	acc  *query.Accumulator
	done bool
}

func (p *aggregatePager) NextPage(ctx context.Context) ([]store.Item, error) {
	if p.done {
		return nil, io.EOF
	}
	p.done = true
	for {
		page, err := p.docs.NextPage(ctx)
		if err == io.EOF {
			return p.acc.Result(), nil
		}
		if err != nil {
			return nil, err
		}
		for _, doc := range page {
			if err := p.acc.Add(doc); err != nil {
				return nil, err
			}
		}
	}
}
