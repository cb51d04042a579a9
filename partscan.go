// Package partscan compares a sequential cross-partition scan of a
// range-partitioned document store with a partition-parallel fan-out
// that merges results on the client.
package partscan

import (
	"context"
	"io"
	"strings"

	"github.com/ab180/partscan/config"
	"github.com/ab180/partscan/credential"
	"github.com/ab180/partscan/report"
	"github.com/ab180/partscan/scan"
	"github.com/ab180/partscan/store"
	"github.com/ab180/partscan/store/etcdstore"
	"github.com/ab180/partscan/store/memstore"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OpenStore connects to the backend selected in the config.
// An in-memory store is created already filled with the configured number of documents.
func OpenStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Backend {
	case config.MemoryBackend:
		s := memstore.New(
			memstore.WithPartitions(cfg.Memory.Partitions),
			memstore.WithPageSize(cfg.PageSize),
			memstore.WithPartitionKey(cfg.PartitionKey),
			memstore.WithSimulatedDelay(cfg.Memory.Latency.Std()),
		)
		if err := Seed(ctx, s, cfg.Memory.Documents); err != nil {
			return nil, err
		}
		return s, nil

	case config.EtcdBackend:
		cred, err := credential.Resolve(cfg.CredentialSource())
		if err != nil {
			return nil, errors.Wrap(err, "resolve credential")
		}
		opt := etcdstore.DefaultOptions()
		opt.PageSize = int64(cfg.PageSize)
		opt.Username = cfg.Username
		opt.PartitionKey = cfg.PartitionKey
		return etcdstore.Open(ctx, strings.Split(cfg.Endpoint, ","), cfg.Namespace(), cred, opt)
	}
	return nil, errors.Errorf("unknown backend %q", cfg.Backend)
}

// Run opens the configured store, compares both ways of running the
// configured query and writes the report to out.
func Run(ctx context.Context, cfg config.Config, out io.Writer) (err error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout.Std())
		defer cancel()
	}

	var closers []io.Closer
	defer func() {
		if closeErr := closeAll(closers); closeErr != nil {
			err = multierror.Append(err, closeErr).ErrorOrNil()
		}
	}()

	if cfg.MetricsAddr != "" {
		srv, err := ServeMetrics(cfg.MetricsAddr)
		if err != nil {
			return err
		}
		closers = append(closers, srv)
	}

	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	closers = append(closers, st)

	log.Info().
		Str("backend", cfg.Backend).
		Str("endpoint", cfg.Endpoint).
		Str("namespace", cfg.Namespace()).
		Msg("comparing sequential and parallel scans")

	outcome, err := scan.Compare(ctx, st, cfg.Query, scan.Options{Concurrency: cfg.Concurrency})
	if err != nil {
		return err
	}
	return report.Render(out, outcome)
}

func closeAll(closers []io.Closer) error {
	var errs *multierror.Error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = multierror.Append(errs, errors.Wrap(err, "close"))
		}
	}
	return errs.ErrorOrNil()
}
