// Package report renders a comparison outcome for humans.
package report

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/ab180/partscan/query"
	"github.com/ab180/partscan/scan"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const liveDataNote = "The data may have changed between the two runs, so a mismatch is not necessarily a bug."

// Render writes a summary of the outcome to w.
func Render(w io.Writer, o *scan.Outcome) error {
	buf := new(bytes.Buffer)

	fmt.Fprintf(buf, "Query: %s\n", o.Query)
	if o.Kind == query.Aggregate {
		fmt.Fprintf(buf, "Kind: %s (partition results are summed on the client)\n", o.Kind)
	} else {
		fmt.Fprintf(buf, "Kind: %s\n", o.Kind)
	}
	fmt.Fprintf(buf, "Partitions: %d\n\n", o.PartitionCount)

	writeResult(buf, "Sequential cross-partition scan", o.Kind, o.Sequential)
	writeResult(buf, "Parallel per-partition scan", o.Kind, o.Parallel)

	if ratio, ok := o.Speedup(); ok {
		fmt.Fprintf(buf, "Speedup: %.2fx\n", ratio)
	} else {
		fmt.Fprintln(buf, "Speedup: n/a")
	}
	if percent, ok := o.Improvement(); ok {
		fmt.Fprintf(buf, "Improvement: %.1f%%\n", percent)
	}

	if o.ResultsMatch {
		if o.Kind == query.Aggregate {
			fmt.Fprintf(buf, "Results match: %s\n", scalarOf(o.Parallel))
		} else {
			fmt.Fprintln(buf, "Results match (ignoring order)")
		}
	} else {
		fmt.Fprintf(buf, "Results differ: sequential %s, parallel %s\n", summaryOf(o.Kind, o.Sequential), summaryOf(o.Kind, o.Parallel))
		fmt.Fprintln(buf, liveDataNote)
	}

	if len(o.Parallel.Partitions) > 0 {
		fmt.Fprintln(buf, "\nPer-partition breakdown:")
		if err := writeBreakdown(buf, o.Parallel.Partitions); err != nil {
			return err
		}
	}

	if _, err := buf.WriteTo(w); err != nil {
		return errors.Wrap(err, "write report")
	}
	return nil
}

func writeResult(buf *bytes.Buffer, title string, kind query.Kind, r scan.Result) {
	fmt.Fprintf(buf, "%s\n", title)
	fmt.Fprintf(buf, "  elapsed: %s\n", r.Elapsed)
	fmt.Fprintf(buf, "  result:  %s\n", summaryOf(kind, r))
	if len(r.Metrics) > 0 {
		fmt.Fprintf(buf, "  metrics:\n%s", r.Metrics)
	}
	fmt.Fprintln(buf)
}

func summaryOf(kind query.Kind, r scan.Result) string {
	if kind == query.Aggregate {
		return scalarOf(r)
	}
	return fmt.Sprintf("%d items", len(r.Items))
}

func scalarOf(r scan.Result) string {
	if len(r.Items) != 1 {
		return fmt.Sprintf("%d values", len(r.Items))
	}
	return r.Items[0].String()
}

func writeBreakdown(buf *bytes.Buffer, stats []scan.PartitionStat) error {
	sorted := append([]scan.PartitionStat(nil), stats...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Range.Min < sorted[j].Range.Min
	})

	tw := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  RANGE\tITEMS\tELAPSED")
	for _, row := range lo.Map(sorted, func(s scan.PartitionStat, _ int) string {
		return fmt.Sprintf("  %s\t%d\t%s", s.Range, s.Items, s.Elapsed)
	}) {
		fmt.Fprintln(tw, row)
	}
	return errors.Wrap(tw.Flush(), "render partition breakdown")
}
