package query

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/ab180/partscan/store"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var codec = jsoniter.Config{
	UseNumber:              true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

type undefinedValue struct{}

// undefined is the value of a path that does not exist in a document.
var undefined = undefinedValue{}

// Project evaluates a non-aggregate plan against a document.
// ok is false when the document is filtered out or the projected value is undefined.
func (p *Plan) Project(doc []byte) (item store.Item, ok bool, err error) {
	if p.IsAggregate() {
		return nil, false, errors.New("aggregate query cannot be projected per document")
	}
	v, err := decode(doc)
	if err != nil {
		return nil, false, err
	}
	if !p.matches(v) {
		return nil, false, nil
	}
	if p.star {
		return append(store.Item(nil), doc...), true, nil
	}
	out := p.expr.eval(v)
	if out == undefined {
		return nil, false, nil
	}
	encoded, err := codec.Marshal(out)
	if err != nil {
		return nil, false, errors.Wrap(err, "encode projection")
	}
	return encoded, true, nil
}

// Accumulator folds documents into the result of an aggregate plan.
type Accumulator struct {
	plan  *Plan
	count int64
	total Number
	best  *Number
}

// NewAccumulator starts a new aggregation. Accumulators are not safe for concurrent use.
func (p *Plan) NewAccumulator() *Accumulator {
	return &Accumulator{plan: p}
}

func (a *Accumulator) Add(doc []byte) error {
	v, err := decode(doc)
	if err != nil {
		return err
	}
	if !a.plan.matches(v) {
		return nil
	}
	val := a.plan.expr.eval(v)
	if val == undefined {
		return nil
	}
	if a.plan.agg == countAgg {
		a.count++
		return nil
	}
	n, ok := val.(Number)
	if !ok {
		// non-numeric values do not contribute to numeric aggregates
		return nil
	}
	a.count++
	a.total = a.total.Add(n)
	switch a.plan.agg {
	case minAgg:
		if a.best == nil || n.Less(*a.best) {
			a.best = &n
		}
	case maxAgg:
		if a.best == nil || a.best.Less(n) {
			a.best = &n
		}
	}
	return nil
}

// Result returns the aggregated value. MIN, MAX and AVG over no values yield an empty result.
func (a *Accumulator) Result() store.Items {
	var out Number
	switch a.plan.agg {
	case countAgg:
		out = Int(a.count)
	case sumAgg:
		out = a.total
	case minAgg, maxAgg:
		if a.best == nil {
			return store.Items{}
		}
		out = *a.best
	case avgAgg:
		if a.count == 0 {
			return store.Items{}
		}
		out = Float(a.total.Float64() / float64(a.count))
	}
	return store.Items{store.Item(out.String())}
}

func decode(doc []byte) (interface{}, error) {
	var v interface{}
	if err := codec.Unmarshal(doc, &v); err != nil {
		return nil, errors.Wrap(err, "decode document")
	}
	return normalize(v), nil
}

// normalize replaces json.Number with Number so that values can be compared and summed.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if n, ok := numberOf(t); ok {
			return n
		}
	case map[string]interface{}:
		for k, e := range t {
			t[k] = normalize(e)
		}
	case []interface{}:
		for i, e := range t {
			t[i] = normalize(e)
		}
	}
	return v
}

func lookup(v interface{}, path []string) interface{} {
	for _, field := range path {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return undefined
		}
		if v, ok = obj[field]; !ok {
			return undefined
		}
	}
	return v
}

func (s scalar) eval(doc interface{}) interface{} {
	if s.literal != nil {
		return *s.literal
	}
	v := lookup(doc, s.path)
	if !s.length {
		return v
	}
	str, ok := v.(string)
	if !ok {
		return undefined
	}
	return Int(int64(utf8.RuneCountInString(str)))
}

func (p *Plan) matches(doc interface{}) bool {
	if p.filter == nil {
		return true
	}
	v := lookup(doc, p.filter.path)
	switch want := p.filter.value.(type) {
	case Number:
		got, ok := v.(Number)
		return ok && got.Equal(want)
	case nil:
		return v == nil
	default:
		return v == want
	}
}
