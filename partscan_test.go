package partscan

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/ab180/partscan/config"
	"github.com/ab180/partscan/credential"
	"github.com/ab180/partscan/internal/testutils"
	"github.com/ab180/partscan/store"
	"github.com/ab180/partscan/store/memstore"
	. "github.com/smartystreets/goconvey/convey"
)

func memoryConfig() config.Config {
	cfg := config.Default()
	cfg.Backend = config.MemoryBackend
	return cfg
}

func TestRun(t *testing.T) {
	Convey("Given a memory backend config", t, func() {
		ctx := testutils.ContextWithTimeout()
		cfg := memoryConfig()

		Convey("Running the default query should report a matching sum", func() {
			out := new(bytes.Buffer)
			So(Run(ctx, cfg, out), ShouldBeNil)

			// 30 ids of the form item-000000
			So(out.String(), ShouldContainSubstring, "Partitions: 3")
			So(out.String(), ShouldContainSubstring, "Results match: 330")
		})

		Convey("Running a plain query should report matching items", func() {
			cfg.Query = "SELECT * FROM c"
			cfg.Concurrency = 2
			out := new(bytes.Buffer)
			So(Run(ctx, cfg, out), ShouldBeNil)
			So(out.String(), ShouldContainSubstring, "30 items")
			So(out.String(), ShouldContainSubstring, "Results match (ignoring order)")
		})

		Convey("An unsupported query should fail", func() {
			cfg.Query = "SELECT VALUE AVG(c.seq) FROM c GROUP BY c.label"
			So(Run(ctx, cfg, io.Discard), ShouldNotBeNil)
		})

		Convey("A run exceeding the timeout should fail", func() {
			cfg.Memory.Documents = 0
			cfg.Memory.Latency = config.Duration(time.Second)
			cfg.Timeout = config.Duration(10 * time.Millisecond)
			err := Run(ctx, cfg, io.Discard)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}

func TestOpenStore(t *testing.T) {
	Convey("Given an etcd backend config without credential", t, func() {
		t.Setenv("PARTSCAN_KEY_UNSET_FOR_TEST", "")
		cfg := config.Default()
		cfg.KeyEnv = "PARTSCAN_KEY_UNSET_FOR_TEST"

		Convey("It should refuse to connect", func() {
			_, err := OpenStore(context.Background(), cfg)
			So(errors.Is(err, credential.ErrMissingKey), ShouldBeTrue)
		})
	})

	Convey("Given a memory backend config", t, func() {
		cfg := memoryConfig()
		cfg.Memory.Partitions = 4
		cfg.Memory.Documents = 250

		Convey("It should open a seeded store", func() {
			st, err := OpenStore(context.Background(), cfg)
			So(err, ShouldBeNil)
			defer st.Close()

			So(st.(*memstore.Store).Len(), ShouldEqual, 250)

			p, err := st.FeedRanges(context.Background())
			So(err, ShouldBeNil)
			ranges, err := store.Drain(context.Background(), p)
			So(err, ShouldBeNil)
			So(ranges, ShouldHaveLength, 4)
		})

		Convey("It should place documents by the configured partition key", func() {
			cfg.PartitionKey = "label"
			st, err := OpenStore(context.Background(), cfg)
			So(err, ShouldBeNil)
			defer st.Close()
			So(st.(*memstore.Store).Len(), ShouldEqual, 250)
		})

		Convey("It should fail when documents lack the configured partition key", func() {
			cfg.PartitionKey = "tenant"
			_, err := OpenStore(context.Background(), cfg)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "no partition key tenant")
		})
	})
}

func TestSeed(t *testing.T) {
	Convey("Seeding twice should replace documents", t, func() {
		s := memstore.New()
		So(Seed(context.Background(), s, 120), ShouldBeNil)
		So(Seed(context.Background(), s, 120), ShouldBeNil)
		So(s.Len(), ShouldEqual, 120)
	})
}

func TestServeMetrics(t *testing.T) {
	Convey("Given a metrics server", t, func() {
		srv, err := ServeMetrics("127.0.0.1:0")
		So(err, ShouldBeNil)
		defer srv.Close()

		Convey("It should expose collectors", func() {
			resp, err := http.Get("http://" + srv.Addr + "/metrics")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			So(string(body), ShouldContainSubstring, "partscan_running_partition_tasks")
		})
	})
}
