package query

import (
	"encoding/json"
	"math"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// Number is a JSON number that stays an exact integer until a fractional value is added to it.
type Number struct {
	i       int64
	f       float64
	isFloat bool
}

func Int(i int64) Number {
	return Number{i: i}
}

func Float(f float64) Number {
	return Number{f: f, isFloat: true}
}

// ParseNumber reads a JSON value as a number. ok is false if the value is not a number.
func ParseNumber(raw []byte) (n Number, ok bool) {
	iter := jsoniter.ParseBytes(jsoniter.ConfigDefault, raw)
	if iter.WhatIsNext() != jsoniter.NumberValue {
		return Number{}, false
	}
	return numberOf(iter.ReadNumber())
}

func numberOf(num json.Number) (Number, bool) {
	if i, err := num.Int64(); err == nil {
		return Int(i), true
	}
	f, err := num.Float64()
	if err != nil {
		return Number{}, false
	}
	return Float(f), true
}

func (n Number) Float64() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

// Add returns n+o. The sum switches to float when either operand is a float
// or when the integer sum would overflow int64.
func (n Number) Add(o Number) Number {
	if !n.isFloat && !o.isFloat {
		sum := n.i + o.i
		if (n.i >= 0) == (o.i >= 0) && (sum >= 0) != (n.i >= 0) {
			return Float(float64(n.i) + float64(o.i))
		}
		return Int(sum)
	}
	return Float(n.Float64() + o.Float64())
}

func (n Number) Less(o Number) bool {
	if !n.isFloat && !o.isFloat {
		return n.i < o.i
	}
	return n.Float64() < o.Float64()
}

func (n Number) Equal(o Number) bool {
	if !n.isFloat && !o.isFloat {
		return n.i == o.i
	}
	return n.Float64() == o.Float64()
}

// relativeTolerance bounds the rounding error of float sums added up in different orders.
const relativeTolerance = 1e-9

// Close is like Equal, but floats only need to agree within a relative tolerance.
func (n Number) Close(o Number) bool {
	if !n.isFloat && !o.isFloat {
		return n.i == o.i
	}
	x, y := n.Float64(), o.Float64()
	return math.Abs(x-y) <= relativeTolerance*math.Max(math.Abs(x), math.Abs(y))
}

func (n Number) String() string {
	if n.isFloat {
		return strconv.FormatFloat(n.f, 'f', -1, 64)
	}
	return strconv.FormatInt(n.i, 10)
}

func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.String()), nil
}
