package scan

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ab180/partscan/internal/testutils"
	"github.com/ab180/partscan/query"
	"github.com/ab180/partscan/store/keyspace"
	"github.com/ab180/partscan/store/memstore"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

const (
	countQuery = "SELECT VALUE COUNT(1) FROM c"
	starQuery  = "SELECT * FROM c"
)

func TestListRanges(t *testing.T) {
	Convey("Given a store with 3 partitions", t, func() {
		ctx := testutils.ContextWithTimeout()

		Convey("It should list every range even if they are empty", func() {
			ranges, err := ListRanges(ctx, memstore.New(memstore.WithPartitions(3)))
			So(err, ShouldBeNil)
			So(ranges, ShouldResemble, keyspace.Even(3))
		})

		Convey("It should see a split made between runs", func() {
			s := testutils.PartitionedStore(3, 1)
			So(s.Split(ctx, keyspace.Even(3)[0]), ShouldBeNil)

			ranges, err := ListRanges(ctx, s)
			So(err, ShouldBeNil)
			So(ranges, ShouldHaveLength, 4)
		})

		Convey("It should propagate store failures", func() {
			s := memstore.New(memstore.WithPartitions(3))
			So(s.Close(), ShouldBeNil)

			_, err := ListRanges(ctx, s)
			So(errors.Is(err, memstore.ErrClosed), ShouldBeTrue)
		})
	})
}

func TestSequential_Run(t *testing.T) {
	Convey("Given a store with 3 partitions of 10 documents", t, func() {
		ctx := testutils.ContextWithTimeout()
		s := testutils.PartitionedStore(3, 10)

		Convey("Running a count query should return a single total", func() {
			res, err := Sequential{Store: s}.Run(ctx, countQuery)
			So(err, ShouldBeNil)
			So(testutils.StringValues(res.Items), ShouldResemble, []string{"30"})
			So(res.Elapsed > 0, ShouldBeTrue)
		})

		Convey("Running the same query twice should yield the same items", func() {
			first, err := Sequential{Store: s}.Run(ctx, starQuery)
			So(err, ShouldBeNil)
			second, err := Sequential{Store: s}.Run(ctx, starQuery)
			So(err, ShouldBeNil)

			So(first.Items, ShouldHaveLength, 30)
			So(Equal(query.Plain, first.Items, second.Items), ShouldBeTrue)
		})

		Convey("Reading pages should be counted", func() {
			paged := testutils.PartitionedStore(3, 10, memstore.WithPageSize(7))
			res, err := Sequential{Store: paged}.Run(ctx, starQuery)
			So(err, ShouldBeNil)
			So(res.Metrics[itemsMetric], ShouldEqual, 30)
			So(res.Metrics[pagesMetric], ShouldEqual, 5)
			So(res.Metrics, ShouldContainKey, elapsedMetric)
		})

		Convey("An unsupported query should fail", func() {
			_, err := Sequential{Store: s}.Run(ctx, "SELECT c.id, COUNT(1) FROM c GROUP BY c.id")
			So(errors.Is(err, query.ErrUnsupported), ShouldBeTrue)
		})
	})
}

func TestParallel_Run(t *testing.T) {
	Convey("Given a store with 3 partitions of 10 documents", t, func() {
		ctx := testutils.ContextWithTimeout()
		ranges := keyspace.Even(3)

		Convey("Running a count query should sum partition results", func() {
			s := testutils.PartitionedStore(3, 10)
			res, err := Parallel{Store: s}.Run(ctx, countQuery, query.Aggregate, ranges)
			So(err, ShouldBeNil)
			So(testutils.StringValues(res.Items), ShouldResemble, []string{"30"})

			So(res.Partitions, ShouldHaveLength, 3)
			for _, p := range res.Partitions {
				So(p.Items, ShouldEqual, 1)
				So(res.Metrics[partitionMetricPrefix(p.Range)+itemsMetric], ShouldEqual, 1)
				So(res.Metrics, ShouldContainKey, partitionMetricPrefix(p.Range)+elapsedMetric)
			}
			So(res.Metrics.Sum("."+itemsMetric), ShouldEqual, 3)
			So(res.Metrics.Sum("."+pagesMetric), ShouldEqual, 3)
		})

		Convey("Running a plain query should concatenate partition results", func() {
			s := testutils.PartitionedStore(3, 10)
			res, err := Parallel{Store: s}.Run(ctx, "SELECT VALUE c.n FROM c", query.Plain, ranges)
			So(err, ShouldBeNil)
			So(res.Items, ShouldHaveLength, 30)
			for _, p := range res.Partitions {
				So(p.Items, ShouldEqual, 10)
			}
		})

		Convey("With a concurrency limit, it should still visit every partition", func() {
			s := testutils.PartitionedStore(3, 10)
			res, err := Parallel{Store: s, Options: Options{Concurrency: 1}}.Run(ctx, starQuery, query.Plain, ranges)
			So(err, ShouldBeNil)
			So(res.Items, ShouldHaveLength, 30)
		})

		Convey("When a partition fails", func() {
			failure := errors.New("partition unavailable")
			s := testutils.PartitionedStore(3, 10, memstore.WithFailingRange(ranges[1], failure))

			Convey("It should fail the whole run with the failing range", func() {
				res, err := Parallel{Store: s}.Run(ctx, countQuery, query.Aggregate, ranges)
				So(err, ShouldNotBeNil)
				So(res.Items, ShouldBeNil)

				var partErr *PartitionError
				So(errors.As(err, &partErr), ShouldBeTrue)
				So(partErr.Range, ShouldResemble, ranges[1])
				So(errors.Is(err, failure), ShouldBeTrue)
			})
		})

		Convey("When the context is cancelled", func() {
			s := memstore.New(memstore.WithPartitions(3), memstore.WithSimulatedDelay(time.Second))
			ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()

			_, err := Parallel{Store: s}.Run(ctx, starQuery, query.Plain, ranges)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})

		Convey("With no ranges, it should return an empty result", func() {
			s := memstore.New(memstore.WithPartitions(0))
			res, err := Parallel{Store: s}.Run(ctx, starQuery, query.Plain, nil)
			So(err, ShouldBeNil)
			So(res.Items, ShouldBeEmpty)
			So(res.Partitions, ShouldBeEmpty)
		})
	})
}

func TestCompare(t *testing.T) {
	Convey("Given a store with 3 partitions of 10 documents", t, func() {
		ctx := testutils.ContextWithTimeout()
		s := testutils.PartitionedStore(3, 10)

		Convey("Comparing a count query", func() {
			o, err := Compare(ctx, s, countQuery, DefaultOptions())
			So(err, ShouldBeNil)

			Convey("It should be classified as an aggregate", func() {
				So(o.Kind, ShouldEqual, query.Aggregate)
				So(o.PartitionCount, ShouldEqual, 3)
			})

			Convey("Both executors should return 30", func() {
				So(testutils.StringValues(o.Sequential.Items), ShouldResemble, []string{"30"})
				So(testutils.StringValues(o.Parallel.Items), ShouldResemble, []string{"30"})
				So(o.ResultsMatch, ShouldBeTrue)
			})
		})

		Convey("Comparing a plain query", func() {
			o, err := Compare(ctx, s, starQuery, DefaultOptions())
			So(err, ShouldBeNil)
			So(o.Kind, ShouldEqual, query.Plain)
			So(o.Sequential.Items, ShouldHaveLength, 30)
			So(o.Parallel.Items, ShouldHaveLength, 30)
			So(o.ResultsMatch, ShouldBeTrue)
		})

		Convey("Partition count should not depend on the number of items in ranges", func() {
			o, err := Compare(ctx, testutils.PartitionedStore(5, 0), countQuery, DefaultOptions())
			So(err, ShouldBeNil)
			So(o.PartitionCount, ShouldEqual, 5)
			So(testutils.StringValues(o.Parallel.Items), ShouldResemble, []string{"0"})
			So(o.ResultsMatch, ShouldBeTrue)
		})

		Convey("Comparing on a store without partitions", func() {
			o, err := Compare(ctx, memstore.New(memstore.WithPartitions(0)), starQuery, DefaultOptions())
			So(err, ShouldBeNil)

			Convey("Both results should be empty and speedup should be undefined", func() {
				So(o.PartitionCount, ShouldEqual, 0)
				So(o.Sequential.Items, ShouldBeEmpty)
				So(o.Parallel.Items, ShouldBeEmpty)
				So(o.ResultsMatch, ShouldBeTrue)

				_, ok := o.Speedup()
				So(ok, ShouldBeFalse)
			})
		})

		Convey("Comparing a count query on a store without partitions", func() {
			o, err := Compare(ctx, memstore.New(memstore.WithPartitions(0)), countQuery, DefaultOptions())
			So(err, ShouldBeNil)

			Convey("Both executors should return a zero count", func() {
				So(o.PartitionCount, ShouldEqual, 0)
				So(testutils.StringValues(o.Sequential.Items), ShouldResemble, []string{"0"})
				So(testutils.StringValues(o.Parallel.Items), ShouldResemble, []string{"0"})
				So(o.ResultsMatch, ShouldBeTrue)

				_, ok := o.Speedup()
				So(ok, ShouldBeFalse)
			})
		})

		Convey("Comparing a sum of fractional values", func() {
			fractional := memstore.New(memstore.WithPartitions(8))
			for i := 0; i < 500; i++ {
				doc := fmt.Sprintf(`{"id":"doc-%d","x":%g}`, i, float64(i)*0.001+0.1)
				So(fractional.Upsert(ctx, []byte(doc)), ShouldBeNil)
			}
			o, err := Compare(ctx, fractional, "SELECT VALUE SUM(c.x) FROM c", DefaultOptions())
			So(err, ShouldBeNil)

			Convey("Results should match despite the partitions being summed in another order", func() {
				So(o.Kind, ShouldEqual, query.Aggregate)
				So(o.ResultsMatch, ShouldBeTrue)
			})
		})

		Convey("A failing partition should fail the comparison", func() {
			failing := testutils.PartitionedStore(3, 10, memstore.WithFailingRange(keyspace.Even(3)[2], errors.New("boom")))
			_, err := Compare(ctx, failing, countQuery, DefaultOptions())

			var partErr *PartitionError
			So(errors.As(err, &partErr), ShouldBeTrue)
		})
	})
}

func TestOutcome_Speedup(t *testing.T) {
	Convey("Given an outcome", t, func() {
		o := &Outcome{
			PartitionCount: 3,
			Sequential:     Result{Elapsed: 300 * time.Millisecond},
			Parallel:       Result{Elapsed: 100 * time.Millisecond},
		}

		Convey("It should compute speedup and improvement", func() {
			ratio, ok := o.Speedup()
			So(ok, ShouldBeTrue)
			So(ratio, ShouldAlmostEqual, 3.0)

			percent, ok := o.Improvement()
			So(ok, ShouldBeTrue)
			So(percent, ShouldAlmostEqual, 66.666, 0.001)
		})

		Convey("Speedup should be undefined when parallel run took no time", func() {
			o.Parallel.Elapsed = 0
			_, ok := o.Speedup()
			So(ok, ShouldBeFalse)
		})

		Convey("Improvement should be undefined when sequential run took no time", func() {
			o.Sequential.Elapsed = 0
			_, ok := o.Improvement()
			So(ok, ShouldBeFalse)
		})
	})
}

func TestParallel_NoLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	failure := errors.New("partition unavailable")
	ranges := keyspace.Even(8)
	s := testutils.PartitionedStore(8, 5,
		memstore.WithFailingRange(ranges[3], failure),
		memstore.WithSimulatedDelay(time.Millisecond),
	)
	if _, err := (Parallel{Store: s}).Run(context.Background(), starQuery, query.Plain, ranges); !errors.Is(err, failure) {
		t.Fatalf("expected partition failure, got %v", err)
	}
	if _, err := (Parallel{Store: s}).Run(context.Background(), countQuery, query.Aggregate, ranges[:3]); err != nil {
		t.Fatal(err)
	}
}

