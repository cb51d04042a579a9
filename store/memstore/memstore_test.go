package memstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ab180/partscan/store"
	"github.com/ab180/partscan/store/keyspace"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func seed(s *Store, n int) {
	for i := 0; i < n; i++ {
		doc := fmt.Sprintf(`{"id":"doc-%d","n":%d}`, i, i)
		So(s.Upsert(context.Background(), []byte(doc)), ShouldBeNil)
	}
}

func TestStore_FeedRanges(t *testing.T) {
	Convey("Given a store with 3 partitions", t, func() {
		s := New(WithPartitions(3), WithPageSize(2))
		ctx := context.Background()

		Convey("It should enumerate every range across pages", func() {
			p, err := s.FeedRanges(ctx)
			So(err, ShouldBeNil)
			ranges, err := store.Drain[store.FeedRange](ctx, p)
			So(err, ShouldBeNil)
			So(ranges, ShouldResemble, keyspace.Even(3))
		})

		Convey("When a range is split", func() {
			So(s.Split(ctx, keyspace.Even(3)[1]), ShouldBeNil)

			Convey("Enumeration should reflect the split", func() {
				p, err := s.FeedRanges(ctx)
				So(err, ShouldBeNil)
				ranges, err := store.Drain[store.FeedRange](ctx, p)
				So(err, ShouldBeNil)
				So(ranges, ShouldHaveLength, 4)
				So(ranges[1].Min, ShouldEqual, keyspace.Even(3)[1].Min)
				So(ranges[2].Max, ShouldEqual, keyspace.Even(3)[1].Max)
			})

			Convey("Splitting a range that no longer exists should fail", func() {
				err := s.Split(ctx, keyspace.Even(3)[1])
				So(errors.Is(err, ErrRangeNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestStore_Query(t *testing.T) {
	Convey("Given a store with 30 documents in 3 partitions", t, func() {
		s := New(WithPartitions(3), WithPageSize(7))
		ctx := context.Background()
		seed(s, 30)
		So(s.Len(), ShouldEqual, 30)

		Convey("A whole-store COUNT should count every document", func() {
			p, err := s.Query(ctx, "SELECT VALUE COUNT(1) FROM c", store.WholeStore)
			So(err, ShouldBeNil)
			items, err := store.Drain[store.Item](ctx, p)
			So(err, ShouldBeNil)
			So(items, ShouldResemble, []store.Item{store.Item("30")})
		})

		Convey("Range-scoped queries should partition the documents", func() {
			total := 0
			for _, r := range keyspace.Even(3) {
				p, err := s.Query(ctx, "SELECT * FROM c", store.InRange(r))
				So(err, ShouldBeNil)
				items, err := store.Drain[store.Item](ctx, p)
				So(err, ShouldBeNil)
				total += len(items)
			}
			So(total, ShouldEqual, 30)
		})

		Convey("Upserting an existing id should replace the document", func() {
			So(s.Upsert(ctx, []byte(`{"id":"doc-0","n":100}`)), ShouldBeNil)
			So(s.Len(), ShouldEqual, 30)

			p, err := s.Query(ctx, "SELECT VALUE SUM(c.n) FROM c", store.WholeStore)
			So(err, ShouldBeNil)
			items, err := store.Drain[store.Item](ctx, p)
			So(err, ShouldBeNil)
			So(items, ShouldResemble, []store.Item{store.Item("535")})
		})

		Convey("Unsupported queries should be rejected", func() {
			_, err := s.Query(ctx, "SELECT VALUE COUNT(1) FROM c GROUP BY c.n", store.WholeStore)
			So(err, ShouldNotBeNil)
		})

		Convey("Documents without id should be rejected", func() {
			So(s.Upsert(ctx, []byte(`{"n":1}`)), ShouldNotBeNil)
		})
	})
}

func TestStore_Simulation(t *testing.T) {
	Convey("Given a store with a failing range", t, func() {
		failing := keyspace.Even(2)[1]
		simulatedErr := errors.New("throttled")
		s := New(WithPartitions(2), WithFailingRange(failing, simulatedErr))
		ctx := context.Background()

		Convey("The query should fail while streaming", func() {
			p, err := s.Query(ctx, "SELECT * FROM c", store.InRange(failing))
			So(err, ShouldBeNil)
			_, err = store.Drain[store.Item](ctx, p)
			So(errors.Is(err, simulatedErr), ShouldBeTrue)
		})

		Convey("Other ranges should not be affected", func() {
			p, err := s.Query(ctx, "SELECT * FROM c", store.InRange(keyspace.Even(2)[0]))
			So(err, ShouldBeNil)
			_, err = store.Drain[store.Item](ctx, p)
			So(err, ShouldBeNil)
		})
	})

	Convey("Given a store with simulated latency", t, func() {
		s := New(WithSimulatedDelay(30 * time.Millisecond))

		Convey("Cancelling the context should interrupt a page read", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
			defer cancel()
			_, err := s.FeedRanges(ctx)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})

	Convey("Given a closed store", t, func() {
		s := New()
		So(s.Close(), ShouldBeNil)

		Convey("Queries should fail", func() {
			_, err := s.Query(context.Background(), "SELECT * FROM c", store.WholeStore)
			So(err, ShouldEqual, ErrClosed)
		})
	})
}
