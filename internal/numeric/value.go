package numeric

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Value keeps a number in the textual form the caller supplied it in.
// The zero Value is unset, which order requests use for "no rate".
type Value struct {
	raw string
	set bool
}

func FromString(s string) Value {
	return Value{raw: strings.TrimSpace(s), set: true}
}

func FromFloat(f float64) Value {
	return Value{raw: strconv.FormatFloat(f, 'f', -1, 64), set: true}
}

func FromInt(i int64) Value {
	return Value{raw: strconv.FormatInt(i, 10), set: true}
}

func FromDecimal(d decimal.Decimal) Value {
	return Value{raw: d.String(), set: true}
}

func (v Value) IsSet() bool { return v.set }

// Raw returns the supplied text untouched.
func (v Value) Raw() string { return v.raw }

func (v Value) String() string { return v.raw }

func (v Value) Decimal() (decimal.Decimal, error) {
	return Parse(v)
}

func (v Value) Canonical() (string, error) {
	return Canonicalize(v)
}
