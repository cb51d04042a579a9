// Package logutils renders crashes of the CLI in a readable form.
package logutils

import (
	"bytes"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/maruel/panicparse/stack"
	"github.com/rs/zerolog/log"
	"github.com/thoas/go-funk"
)

// PanicError is a recovered panic together with the goroutines running when it happened.
type PanicError struct {
	Reason string
	Stack  string

	// Goroutines is the number of goroutines found in the dump, zero if it could not be parsed.
	Goroutines int

	// Omitted is the number of goroutines left out of Stack because they
	// only ran code of the runtime or the standard library.
	Omitted int

	GoroutineBuckets []*stack.Bucket
}

func (pe PanicError) Error() string {
	return pe.Reason
}

func (pe PanicError) Pretty() string {
	return fmt.Sprintf("%s\n\n%s", pe.Reason, pe.Stack)
}

// Log reports the panic as a single structured event.
func (pe PanicError) Log() {
	log.Error().
		Str("reason", pe.Reason).
		Int("goroutines", pe.Goroutines).
		Int("omitted", pe.Omitted).
		Msg("partscan crashed")
}

// WrapRecover turns a recovered value into a PanicError. Goroutines with
// identical stacks, such as partition tasks waiting on the same page, are
// grouped together. It returns nil if nothing was recovered.
func WrapRecover(r interface{}) *PanicError {
	if r == nil {
		return nil
	}
	reason := fmt.Sprintf("panic: %v", r)

	dump := dumpGoroutines()
	c, err := stack.ParseDump(bytes.NewReader(dump), io.Discard, true)
	if err != nil || c == nil {
		log.Warn().Err(err).Msg("unable to parse panic stacktrace")
		return &PanicError{
			Reason: reason,
			Stack:  string(dump),
		}
	}

	buckets := stack.Aggregate(c.Goroutines, stack.AnyValue)
	shown := funk.Filter(buckets, func(b *stack.Bucket) bool {
		return b.First || ownsFrames(b)
	}).([]*stack.Bucket)

	pe := &PanicError{
		Reason:           reason,
		Goroutines:       len(c.Goroutines),
		GoroutineBuckets: shown,
	}
	for _, b := range shown {
		pe.Omitted -= len(b.IDs)
	}
	pe.Omitted += pe.Goroutines
	pe.Stack = render(shown, pe.Omitted)
	return pe
}

func dumpGoroutines() []byte {
	buf := make([]byte, 1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return buf[:n]
		}
		buf = make([]byte, 2*len(buf))
	}
}

// ownsFrames tells whether any frame of the bucket runs code outside of the standard library.
func ownsFrames(b *stack.Bucket) bool {
	for _, call := range b.Stack.Calls {
		if !call.IsStdlib {
			return true
		}
	}
	return false
}

func render(buckets []*stack.Bucket, omitted int) string {
	srcLen := 0
	for _, bucket := range buckets {
		for _, line := range bucket.Stack.Calls {
			if l := len(line.SrcLine()); l > srcLen {
				srcLen = l
			}
		}
	}

	var sb strings.Builder
	for _, bucket := range buckets {
		calls := bucket.Stack.Calls
		if bucket.First {
			// frames above the panic belong to the runtime and the recover handler
			index, _ := funk.FindKey(calls, func(line stack.Call) bool {
				return line.Func.Name() == "panic"
			})
			if index != nil {
				calls = calls[index.(int)+1:]
			}
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(header(bucket))
		for _, line := range calls {
			fmt.Fprintf(&sb, "    %-*s  %s(%s)\n", srcLen, line.SrcLine(), line.Func.PkgDotName(), &line.Args)
		}
		if bucket.Stack.Elided {
			sb.WriteString("    (...)\n")
		}
	}
	if omitted > 0 {
		fmt.Fprintf(&sb, "\n(%d goroutines of the runtime and standard library omitted)\n", omitted)
	}
	return sb.String()
}

func header(bucket *stack.Bucket) string {
	var extra []string
	if s := bucket.SleepString(); s != "" {
		extra = append(extra, s)
	}
	if bucket.Locked {
		extra = append(extra, "locked")
	}
	if c := bucket.CreatedByString(false); c != "" {
		extra = append(extra, "created by "+c)
	}

	ids := fmt.Sprintf("%d goroutines", len(bucket.IDs))
	if len(bucket.IDs) == 1 {
		ids = fmt.Sprintf("goroutine #%d", bucket.IDs[0])
	}
	if bucket.First {
		ids += " (panicked)"
	}
	if len(extra) == 0 {
		return fmt.Sprintf("%s: %s\n", ids, bucket.State)
	}
	return fmt.Sprintf("%s: %s [%s]\n", ids, bucket.State, strings.Join(extra, ", "))
}
