package query

import "regexp"

// Kind tells how results of a query can be combined across partitions.
type Kind int

const (
	// Plain results can only be concatenated.
	Plain Kind = iota

	// Aggregate results are a single COUNT or SUM scalar per partition, which are additive.
	Aggregate
)

func (k Kind) String() string {
	if k == Aggregate {
		return "aggregate"
	}
	return "plain"
}

var (
	summablePattern = regexp.MustCompile(`(?i)^\s*SELECT\s+VALUE\s+(COUNT|SUM)\s*\(`)
	groupByPattern  = regexp.MustCompile(`(?i)\bGROUP\s+BY\b`)
)

// Classify decides whether per-partition results of the query can be summed.
// It is a syntactic check, so it only recognizes ungrouped COUNT and SUM
// projected by the leading SELECT. Anything it does not recognize is Plain,
// which is always safe to concatenate.
func Classify(q string) Kind {
	if !summablePattern.MatchString(q) || groupByPattern.MatchString(q) {
		return Plain
	}
	return Aggregate
}
