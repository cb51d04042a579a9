// Package metric holds per-run counters of a comparison and the
// process-wide Prometheus collectors.
package metric

import (
	"fmt"
	"sort"

	"github.com/thoas/go-funk"
)

// Metrics is a snapshot of named counters.
type Metrics map[string]uint64

// Add merges two metrics. When a key collides, it sums two key.
func (m Metrics) Add(o Metrics) {
	for k, v := range o {
		m[k] += v
	}
}

// WithPrefix returns new metric where all keys prefixed with given prefix.
func (m Metrics) WithPrefix(p string) (prefixed Metrics) {
	prefixed = make(Metrics, len(m))
	for k, v := range m {
		prefixed[p+k] = v
	}
	return
}

// Sum adds up every counter whose key has the given suffix.
func (m Metrics) Sum(suffix string) (total uint64) {
	for k, v := range m {
		if len(k) >= len(suffix) && k[len(k)-len(suffix):] == suffix {
			total += v
		}
	}
	return
}

func (m Metrics) String() string {
	keys := funk.Keys(m).([]string)
	sort.Strings(keys)

	metricLogs := ""
	for _, key := range keys {
		metricLogs += fmt.Sprintf(" - %s: %d\n", key, m[key])
	}
	return metricLogs
}
