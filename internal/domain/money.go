package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Money is a fixed-point dollar amount. All option premium and notional
// arithmetic goes through Money so binary float drift never reaches a
// position size or budget counter.
type Money struct {
	amount decimal.Decimal
}

// NewMoney creates a Money value from a float64 dollar amount.
func NewMoney(amount float64) Money {
	return Money{amount: decimal.NewFromFloat(amount)}
}

// NewMoneyFromString parses a decimal string like "106.50".
func NewMoneyFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, Errorf(ErrInvalid, "money.parse", "invalid amount %q: %v", s, err)
	}
	return Money{amount: d}, nil
}

// MoneyFromCents builds a Money value from an integer cent count.
// Budget counters persist cents to keep the store integral.
func MoneyFromCents(cents int64) Money {
	return Money{amount: decimal.New(cents, -2)}
}

func (m Money) Add(other Money) Money      { return Money{amount: m.amount.Add(other.amount)} }
func (m Money) Sub(other Money) Money      { return Money{amount: m.amount.Sub(other.amount)} }
func (m Money) MulFloat(f float64) Money   { return Money{amount: m.amount.Mul(decimal.NewFromFloat(f))} }
func (m Money) MulInt(n int64) Money       { return Money{amount: m.amount.Mul(decimal.NewFromInt(n))} }
func (m Money) DivInt(n int64) Money       { return Money{amount: m.amount.Div(decimal.NewFromInt(n))} }
func (m Money) Cmp(other Money) int        { return m.amount.Cmp(other.amount) }
func (m Money) LessThan(other Money) bool  { return m.amount.Cmp(other.amount) < 0 }
func (m Money) GreaterThan(o Money) bool   { return m.amount.Cmp(o.amount) > 0 }
func (m Money) IsZero() bool               { return m.amount.IsZero() }
func (m Money) IsPositive() bool           { return m.amount.IsPositive() }
func (m Money) IsNegative() bool           { return m.amount.IsNegative() }
func (m Money) Float64() float64           { f, _ := m.amount.Float64(); return f }
func (m Money) Cents() int64               { return m.amount.Shift(2).Round(0).IntPart() }
func (m Money) Decimal() decimal.Decimal   { return m.amount }

// String renders as "$N.NN".
func (m Money) String() string {
	return "$" + m.amount.StringFixed(2)
}

// MarshalJSON renders the bare decimal amount, e.g. "12.50".
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.amount.StringFixed(2))
}

// UnmarshalJSON accepts a decimal string or a bare number.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := NewMoneyFromString(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalYAML renders the bare decimal amount.
func (m Money) MarshalYAML() (interface{}, error) {
	return m.amount.StringFixed(2), nil
}

// UnmarshalYAML accepts a decimal scalar, quoted or not.
func (m *Money) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := NewMoneyFromString(node.Value)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Percentage is a percent value constrained to [-100, +1000].
// The range covers a total loss on the downside and a 10x move on the
// upside; anything outside is a data error, not a market move.
type Percentage struct {
	value float64
}

const (
	minPercentage = -100.0
	maxPercentage = 1000.0
)

// NewPercentage validates and wraps a percent value.
func NewPercentage(value float64) (Percentage, error) {
	if value != value { // NaN
		return Percentage{}, Errorf(ErrInvalid, "percentage.new", "percentage is NaN")
	}
	if value < minPercentage || value > maxPercentage {
		return Percentage{}, Errorf(ErrInvalid, "percentage.new",
			"percentage %.4f outside [%.0f, %.0f]", value, minPercentage, maxPercentage)
	}
	return Percentage{value: value}, nil
}

func (p Percentage) Value() float64 { return p.value }

// Fraction returns the percentage as a 0-centered fraction (5% -> 0.05).
func (p Percentage) Fraction() float64 { return p.value / 100.0 }

func (p Percentage) String() string {
	return fmt.Sprintf("%.2f%%", p.value)
}

// Strike is an option strike price. Strikes are hashable (Key) and
// ordered so chains can index quotes by strike.
type Strike struct {
	price decimal.Decimal
}

// NewStrike creates a strike from a float64 price.
func NewStrike(price float64) Strike {
	return Strike{price: decimal.NewFromFloat(price)}
}

// NewStrikeFromString parses a strike from its decimal representation.
func NewStrikeFromString(s string) (Strike, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Strike{}, Errorf(ErrInvalid, "strike.parse", "invalid strike %q: %v", s, err)
	}
	return Strike{price: d}, nil
}

// Key returns a canonical map key, fixed to 4 decimal places so that
// 150, 150.0 and 150.0000 address the same strike.
func (s Strike) Key() string { return s.price.StringFixed(4) }

func (s Strike) Float64() float64        { f, _ := s.price.Float64(); return f }
func (s Strike) Cmp(other Strike) int    { return s.price.Cmp(other.price) }
func (s Strike) LessThan(o Strike) bool  { return s.price.Cmp(o.price) < 0 }
func (s Strike) Equal(other Strike) bool { return s.price.Cmp(other.price) == 0 }

func (s Strike) String() string { return s.price.StringFixed(2) }

// MarshalJSON renders the canonical strike key.
func (s Strike) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Key())
}

// UnmarshalJSON accepts a decimal string or a bare number.
func (s *Strike) UnmarshalJSON(data []byte) error {
	parsed, err := NewStrikeFromString(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// DistanceFrom returns |strike - price| as a float64, used for ATM discovery.
func (s Strike) DistanceFrom(price float64) float64 {
	d := s.Float64() - price
	if d < 0 {
		return -d
	}
	return d
}
