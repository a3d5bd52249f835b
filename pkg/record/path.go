package record

import (
	"math"
	"strconv"
	"strings"
)

// Lookup walks path through nested objects. It stops with ok=false as soon as
// an intermediate node is not an object, a key is absent, or a node is null.
func (v Value) Lookup(path ...string) (Value, bool) {
	cur := v
	for _, key := range path {
		next, ok := cur.Field(key)
		if !ok || next.IsNull() {
			return Value{}, false
		}
		cur = next
	}
	if cur.IsNull() {
		return Value{}, false
	}
	return cur, true
}

// StringAt resolves path to a string. Numbers and booleans are rendered as
// text; a miss, an empty string, or a container yields def.
func (v Value) StringAt(def string, path ...string) string {
	found, ok := v.Lookup(path...)
	if !ok {
		return def
	}
	switch found.Kind() {
	case KindString:
		if found.s == "" {
			return def
		}
		return found.s
	case KindNumber, KindBool:
		return found.Text()
	default:
		return def
	}
}

// NumberAt resolves path to a float. Numeric strings are parsed; anything
// else yields def.
func (v Value) NumberAt(def float64, path ...string) float64 {
	found, ok := v.Lookup(path...)
	if !ok {
		return def
	}
	switch found.Kind() {
	case KindNumber:
		return found.n
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(found.s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return def
		}
		return f
	default:
		return def
	}
}

// IntAt resolves path to an integer, truncating fractional numbers.
func (v Value) IntAt(def int64, path ...string) int64 {
	f := v.NumberAt(math.NaN(), path...)
	if math.IsNaN(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return def
	}
	return int64(f)
}

// BoolAt resolves path to a boolean; only JSON booleans count.
func (v Value) BoolAt(def bool, path ...string) bool {
	found, ok := v.Lookup(path...)
	if !ok {
		return def
	}
	if b, ok := found.AsBool(); ok {
		return b
	}
	return def
}

// ListAt resolves path to an array. A miss or a non-array yields nil.
func (v Value) ListAt(path ...string) []Value {
	found, ok := v.Lookup(path...)
	if !ok {
		return nil
	}
	return found.Items()
}
