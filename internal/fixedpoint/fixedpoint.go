// Package fixedpoint implements the exact-arithmetic price/quantity type used
// throughout the engine. Prices and quantities are stored as an int64
// mantissa scaled by 10^Scale, the same representation the original paise-
// scaled Candle type used, generalized to a configurable scale.
package fixedpoint

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// Scale is the number of decimal digits carried by every Value. Both prices
// and quantities use the same scale (spec default: 8).
const Scale = 8

var pow10 = int64(100000000) // 10^Scale

// Value is a fixed-point decimal: the real value is int64(v) / 10^Scale.
type Value struct {
	v int64
}

// Zero is the additive identity.
var Zero = Value{}

// FromFloat64 converts a float64 to a Value, rounding to the nearest unit of
// scale. Only used at ingress boundaries (parsing exchange JSON); all
// downstream arithmetic stays in fixed-point.
func FromFloat64(f float64) Value {
	return Value{v: int64(math.Round(f * float64(pow10)))}
}

// FromString parses a decimal string (e.g. "12345.6789") exactly, without an
// intermediate float64 conversion.
func FromString(s string) (Value, error) {
	if s == "" {
		return Zero, fmt.Errorf("fixedpoint: empty string")
	}
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	} else if s[0] == '+' {
		s = s[1:]
	}

	intPart := s
	fracPart := ""
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			intPart = s[:i]
			fracPart = s[i+1:]
			break
		}
	}
	if len(fracPart) > Scale {
		fracPart = fracPart[:Scale]
	}
	for len(fracPart) < Scale {
		fracPart += "0"
	}
	if intPart == "" {
		intPart = "0"
	}

	intVal, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Zero, fmt.Errorf("fixedpoint: invalid integer part %q: %w", intPart, err)
	}
	fracVal, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return Zero, fmt.Errorf("fixedpoint: invalid fractional part %q: %w", fracPart, err)
	}

	v := intVal*pow10 + fracVal
	if neg {
		v = -v
	}
	return Value{v: v}, nil
}

// FromInt constructs a Value equal to the given whole number.
func FromInt(n int64) Value {
	return Value{v: n * pow10}
}

// Raw returns the underlying scaled mantissa (for snapshot/serialization).
func (a Value) Raw() int64 { return a.v }

// FromRaw reconstructs a Value from a previously captured mantissa.
func FromRaw(raw int64) Value { return Value{v: raw} }

// Float64 converts to a float64. Used only at egress boundaries (JSON
// encoding, correlation math in indicators) where exact decimal semantics
// are not required.
func (a Value) Float64() float64 {
	return float64(a.v) / float64(pow10)
}

func (a Value) Add(b Value) Value { return Value{v: a.v + b.v} }
func (a Value) Sub(b Value) Value { return Value{v: a.v - b.v} }

// Mul multiplies two scaled values, renormalizing the result back to Scale.
// Uses math/big so the intermediate 2*Scale-wide product never overflows
// int64, at the cost of an allocation — Mul/Div sit on the indicator
// compute path (not the ingress hot path), where this is an acceptable
// trade for exact, easily-verified arithmetic over hand-rolled 128-bit
// division.
func (a Value) Mul(b Value) Value {
	prod := new(big.Int).Mul(big.NewInt(a.v), big.NewInt(b.v))
	return Value{v: bigDivRound(prod, big.NewInt(pow10))}
}

// MulInt multiplies by a plain integer (no rescale needed).
func (a Value) MulInt(n int64) Value { return Value{v: a.v * n} }

// Div divides a by b, keeping Scale digits of precision.
func (a Value) Div(b Value) Value {
	if b.v == 0 {
		return Zero
	}
	num := new(big.Int).Mul(big.NewInt(a.v), big.NewInt(pow10))
	return Value{v: bigDivRound(num, big.NewInt(b.v))}
}

// bigDivRound divides num by den and rounds half away from zero.
func bigDivRound(num, den *big.Int) int64 {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	r.Abs(r)
	twiceR := new(big.Int).Lsh(r, 1)
	if twiceR.CmpAbs(new(big.Int).Abs(den)) >= 0 {
		if (num.Sign() < 0) != (den.Sign() < 0) {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return q.Int64()
}

func (a Value) Cmp(b Value) int {
	switch {
	case a.v < b.v:
		return -1
	case a.v > b.v:
		return 1
	default:
		return 0
	}
}

func (a Value) Equal(b Value) bool      { return a.v == b.v }
func (a Value) LessThan(b Value) bool   { return a.v < b.v }
func (a Value) GreaterThan(b Value) bool { return a.v > b.v }
func (a Value) IsZero() bool            { return a.v == 0 }
func (a Value) IsNegative() bool        { return a.v < 0 }

func Min(a, b Value) Value {
	if a.v < b.v {
		return a
	}
	return b
}

func Max(a, b Value) Value {
	if a.v > b.v {
		return a
	}
	return b
}

// String renders the value with Scale fractional digits.
func (a Value) String() string {
	neg := a.v < 0
	v := a.v
	if neg {
		v = -v
	}
	intPart := v / pow10
	fracPart := v % pow10
	s := fmt.Sprintf("%d.%08d", intPart, fracPart)
	if neg {
		s = "-" + s
	}
	return s
}

// MarshalJSON encodes as a JSON number (not a string) so existing JSON
// consumers that expect numeric price fields keep working; precision is
// bounded by float64's ~15-17 significant digits, which exceeds what any
// exchange quotes.
func (a Value) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(a.Float64(), 'f', -1, 64)), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted decimal strings (the
// latter is how Binance-shaped REST/WS payloads encode price fields).
func (a *Value) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := FromString(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

