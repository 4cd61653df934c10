package numeric

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidNumericInput is returned when a value cannot be read as an exact decimal.
var ErrInvalidNumericInput = errors.New("invalid numeric input")

// Canonicalize renders v as the shortest exact decimal text an exchange accepts:
// integral values carry no fractional part and other values carry no trailing zeros.
// Output never uses exponent notation.
func Canonicalize(v any) (string, error) {
	d, err := Parse(v)
	if err != nil {
		return "", err
	}
	return Format(d), nil
}

// Format renders an already parsed decimal in canonical form.
func Format(d decimal.Decimal) string {
	if whole := d.Truncate(0); d.Equal(whole) {
		return whole.String()
	}
	return d.String()
}

// Parse reads v as an exact decimal. Floats go through their shortest round-trip
// text first, so 0.1 parses as 0.1 and not as its binary approximation.
func Parse(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case Value:
		if !x.set {
			return decimal.Zero, fmt.Errorf("%w: value not set", ErrInvalidNumericInput)
		}
		return parseString(x.raw)
	case *Value:
		if x == nil {
			return decimal.Zero, fmt.Errorf("%w: nil value", ErrInvalidNumericInput)
		}
		return Parse(*x)
	case string:
		return parseString(x)
	case decimal.Decimal:
		return x, nil
	case float64:
		return parseFloat(x, 64)
	case float32:
		return parseFloat(float64(x), 32)
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case uint:
		return decimal.NewFromString(strconv.FormatUint(uint64(x), 10))
	case uint32:
		return decimal.NewFromInt(int64(x)), nil
	case uint64:
		return decimal.NewFromString(strconv.FormatUint(x, 10))
	case nil:
		return decimal.Zero, fmt.Errorf("%w: nil", ErrInvalidNumericInput)
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported type %T", ErrInvalidNumericInput, v)
	}
}

func parseString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty string", ErrInvalidNumericInput)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidNumericInput, s)
	}
	return d, nil
}

func parseFloat(f float64, bits int) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidNumericInput, f)
	}
	return parseString(strconv.FormatFloat(f, 'f', -1, bits))
}
