// Package etcdstore keeps documents in etcd, ordered by their position in the
// hashed keyspace, so that a feed range maps to a contiguous etcd key range.
//
// Layout under the namespace:
//
//	docs/<16-hex hash>/<id>   document body
//	ranges/<16-hex min>       feed range, absent when the keyspace is a single range
package etcdstore

import (
	"context"
	"io"
	"os"

	"github.com/ab180/partscan/credential"
	"github.com/ab180/partscan/query"
	"github.com/ab180/partscan/store"
	"github.com/ab180/partscan/store/keyspace"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.etcd.io/etcd/api/v3/mvccpb"
	"go.etcd.io/etcd/client/pkg/v3/transport"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"
	"google.golang.org/grpc"
)

const (
	docsNs   = "docs/"
	rangesNs = "ranges/"

	minBound = "0000000000000000"
)

var (
	ErrRangeNotFound = errors.New("feed range not found")
	ErrConflict      = errors.New("feed ranges were modified concurrently")
)

// Environment variables etcdctl reads its client certificate from.
// They are the ambient identity of an etcd client.
const (
	certEnvKey   = "ETCDCTL_CERT"
	keyEnvKey    = "ETCDCTL_KEY"
	cacertEnvKey = "ETCDCTL_CACERT"
)

type Store struct {
	Client *clientv3.Client
	KV     clientv3.KV

	option Options
}

// Open connects to etcd. Every key is prefixed with nsPrefix, which usually is "<database>/<container>/".
func Open(ctx context.Context, endpoints []string, nsPrefix string, cred credential.Credential, opts ...Options) (*Store, error) {
	option := DefaultOptions()
	if len(opts) > 0 {
		option = opts[0]
	}

	cfg := clientv3.Config{
		Context:     ctx,
		Endpoints:   endpoints,
		DialTimeout: option.DialTimeout,
		DialOptions: []grpc.DialOption{grpc.WithBlock()},
	}
	if err := authenticate(&cfg, cred, option.Username); err != nil {
		return nil, err
	}
	cli, err := clientv3.New(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "connect etcd %v", endpoints)
	}
	log.Debug().
		Strs("endpoints", endpoints).
		Str("namespace", nsPrefix).
		Stringer("credential", cred).
		Msg("connected to etcd")

	return &Store{
		Client: cli,
		KV:     namespace.NewKV(cli.KV, nsPrefix),
		option: option,
	}, nil
}

func authenticate(cfg *clientv3.Config, cred credential.Credential, username string) error {
	switch cred.Kind() {
	case credential.StaticKeyKind:
		password, err := cred.Reveal()
		if err != nil {
			return err
		}
		cfg.Username, cfg.Password = username, password

	case credential.AmbientIdentityKind:
		certFile, ok := os.LookupEnv(certEnvKey)
		if !ok {
			// no client certificate: rely on whatever the network grants us
			return nil
		}
		tlsInfo := transport.TLSInfo{
			CertFile:      certFile,
			KeyFile:       os.Getenv(keyEnvKey),
			TrustedCAFile: os.Getenv(cacertEnvKey),
		}
		tlsCfg, err := tlsInfo.ClientConfig()
		if err != nil {
			return errors.Wrap(err, "load client certificate")
		}
		cfg.TLS = tlsCfg

	default:
		return errors.New("credential is not resolved")
	}
	return nil
}

func docKey(hash uint64, id string) string {
	return docsNs + keyspace.Encode(hash) + "/" + id
}

func rangeKey(r store.FeedRange) string {
	if r.Min == "" {
		return rangesNs + minBound
	}
	return rangesNs + r.Min
}

// keyRange returns etcd keys [start, end) holding documents of the scope.
func keyRange(scope store.Scope) (start, end string) {
	start, end = docsNs, clientv3.GetPrefixRangeEnd(docsNs)
	if scope.IsWholeStore() {
		return
	}
	if scope.Range.Min != "" {
		start = docsNs + scope.Range.Min
	}
	if scope.Range.Max != "" {
		end = docsNs + scope.Range.Max
	}
	return
}

// FeedRanges lists persisted feed ranges. A store which has never been split has a single full range.
func (s *Store) FeedRanges(ctx context.Context) (store.Pager[store.FeedRange], error) {
	ranges := &keyPager[store.FeedRange]{
		kv:        s.KV,
		key:       rangesNs,
		end:       clientv3.GetPrefixRangeEnd(rangesNs),
		limit:     s.option.PageSize,
		opTimeout: s.option.OpTimeout,
		decode: func(kv *mvccpb.KeyValue) (r store.FeedRange, ok bool, err error) {
			err = jsoniter.Unmarshal(kv.Value, &r)
			return r, err == nil, err
		},
	}
	first, err := ranges.NextPage(ctx)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "list feed ranges")
	}
	if len(first) == 0 {
		return store.NewSlicePager([]store.FeedRange{keyspace.Full()}, 0), nil
	}
	served := false
	return store.PagerFunc[store.FeedRange](func(ctx context.Context) ([]store.FeedRange, error) {
		if !served {
			served = true
			return first, nil
		}
		return ranges.NextPage(ctx)
	}), nil
}

func (s *Store) Query(ctx context.Context, q string, scope store.Scope) (store.Pager[store.Item], error) {
	plan, err := query.Compile(q)
	if err != nil {
		return nil, err
	}
	start, end := keyRange(scope)
	log.Debug().
		Stringer("plan", plan).
		Stringer("scope", scope).
		Bool("aggregate", plan.IsAggregate()).
		Msg("issuing query")
	if plan.IsAggregate() {
		return &aggregatePager{
			docs: &keyPager[[]byte]{
				kv:        s.KV,
				key:       start,
				end:       end,
				limit:     s.option.PageSize,
				opTimeout: s.option.OpTimeout,
				decode: func(kv *mvccpb.KeyValue) ([]byte, bool, error) {
					return kv.Value, true, nil
				},
			},
			acc: plan.NewAccumulator(),
		}, nil
	}
	return &keyPager[store.Item]{
		kv:        s.KV,
		key:       start,
		end:       end,
		limit:     s.option.PageSize,
		opTimeout: s.option.OpTimeout,
		decode: func(kv *mvccpb.KeyValue) (store.Item, bool, error) {
			return plan.Project(kv.Value)
		},
	}, nil
}

// Upsert writes documents in batched transactions.
func (s *Store) Upsert(ctx context.Context, docs ...[]byte) error {
	var ops []clientv3.Op
	for _, doc := range docs {
		id := jsoniter.Get(doc, "id")
		if id.ValueType() != jsoniter.StringValue || id.ToString() == "" {
			return errors.New("document must have a non-empty string id")
		}
		pk := jsoniter.Get(doc, s.option.PartitionKey)
		if pk.LastError() != nil {
			return errors.Errorf("document %s has no partition key %s", id.ToString(), s.option.PartitionKey)
		}
		ops = append(ops, clientv3.OpPut(docKey(keyspace.Hash(pk.ToString()), id.ToString()), string(doc)))

		if len(ops) >= s.option.BatchSize {
			if err := s.commit(ctx, ops); err != nil {
				return err
			}
			ops = ops[:0]
		}
	}
	if len(ops) == 0 {
		return nil
	}
	return s.commit(ctx, ops)
}

func (s *Store) commit(ctx context.Context, ops []clientv3.Op) error {
	ctx, cancel := context.WithTimeout(ctx, s.option.OpTimeout)
	defer cancel()

	if _, err := s.KV.Txn(ctx).Then(ops...).Commit(); err != nil {
		return errors.Wrapf(err, "commit %d writes", len(ops))
	}
	return nil
}

// Split replaces the range with its halves. It fails with ErrConflict
// if the range was modified after it had been read.
func (s *Store) Split(ctx context.Context, r store.FeedRange) error {
	p, err := s.FeedRanges(ctx)
	if err != nil {
		return err
	}
	ranges, err := store.Drain(ctx, p)
	if err != nil {
		return errors.Wrap(err, "list feed ranges")
	}
	found := false
	for _, existing := range ranges {
		found = found || existing == r
	}
	if !found {
		return errors.Wrapf(ErrRangeNotFound, "split %s", r)
	}

	lower, upper, err := keyspace.Split(r)
	if err != nil {
		return err
	}
	encoded, err := jsoniter.MarshalToString(r)
	if err != nil {
		return err
	}
	lowerVal, err := jsoniter.MarshalToString(lower)
	if err != nil {
		return err
	}
	upperVal, err := jsoniter.MarshalToString(upper)
	if err != nil {
		return err
	}

	// the single implicit range has no key yet
	cmp := clientv3.Compare(clientv3.Value(rangeKey(r)), "=", encoded)
	if len(ranges) == 1 && r == keyspace.Full() {
		cmp = clientv3.Compare(clientv3.CreateRevision(rangeKey(r)), "=", 0)
	}

	ctx, cancel := context.WithTimeout(ctx, s.option.OpTimeout)
	defer cancel()

	resp, err := s.KV.Txn(ctx).
		If(cmp).
		Then(
			clientv3.OpPut(rangeKey(lower), lowerVal),
			clientv3.OpPut(rangeKey(upper), upperVal),
		).
		Commit()
	if err != nil {
		return errors.Wrapf(err, "split %s", r)
	}
	if !resp.Succeeded {
		return errors.Wrapf(ErrConflict, "split %s", r)
	}
	log.Info().
		Stringer("range", r).
		Stringer("lower", lower).
		Stringer("upper", upper).
		Msg("feed range split")
	return nil
}

// Purge removes every document and feed range in the namespace.
func (s *Store) Purge(ctx context.Context) (deleted int64, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.option.OpTimeout)
	defer cancel()

	for _, prefix := range []string{docsNs, rangesNs} {
		resp, err := s.KV.Delete(ctx, prefix, clientv3.WithPrefix())
		if err != nil {
			return deleted, errors.Wrapf(err, "delete %s", prefix)
		}
		deleted += resp.Deleted
	}
	return deleted, nil
}

func (s *Store) Close() error {
	return s.Client.Close()
}

var (
	_ store.Store    = (*Store)(nil)
	_ store.Writer   = (*Store)(nil)
	_ store.Splitter = (*Store)(nil)
)
