// Package money provides fixed-point decimal types for the two native
// denominations (rao and TAO) and for USD, plus lossless conversion
// between them. The domain entities still hold alpha-token quantities,
// Position.UnrealizedAlphaPnL and SlippageSurface.ExpectedOutput as
// float64.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// RaoPerTAO is the fixed conversion factor between rao (smallest unit)
// and TAO: 10^9 rao = 1 TAO.
var RaoPerTAO = decimal.New(1, 9)

// TAO is a TAO-denominated fixed-point amount, kept to 9 fractional
// digits (the native precision of rao).
type TAO struct {
	d decimal.Decimal
}

// USD is a USD-denominated fixed-point amount, kept to 2 fractional
// digits.
type USD struct {
	d decimal.Decimal
}

// Rao is a smallest-unit integer amount of TAO.
type Rao struct {
	d decimal.Decimal
}

// Percent is a ratio/percentage field kept to 6 fractional digits
// (e.g. slippage_pct, flow thresholds, APY).
type Percent struct {
	d decimal.Decimal
}

func NewTAO(f float64) TAO       { return TAO{decimal.NewFromFloat(f).Truncate(9)} }
func TAOFromString(s string) (TAO, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return TAO{}, fmt.Errorf("parse TAO amount %q: %w", s, err)
	}
	return TAO{d.Truncate(9)}, nil
}
func TAOFromDecimal(d decimal.Decimal) TAO { return TAO{d.Truncate(9)} }
func ZeroTAO() TAO                         { return TAO{decimal.Zero} }

func NewUSD(f float64) USD { return USD{decimal.NewFromFloat(f).Truncate(2)} }
func USDFromString(s string) (USD, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return USD{}, fmt.Errorf("parse USD amount %q: %w", s, err)
	}
	return USD{d.Truncate(2)}, nil
}
func ZeroUSD() USD { return USD{decimal.Zero} }

func NewPercent(f float64) Percent { return Percent{decimal.NewFromFloat(f).Truncate(6)} }
func PercentFromString(s string) (Percent, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Percent{}, fmt.Errorf("parse percent value %q: %w", s, err)
	}
	return Percent{d.Truncate(6)}, nil
}
func ZeroPercent() Percent { return Percent{decimal.Zero} }

func RaoFromInt(i int64) Rao { return Rao{decimal.NewFromInt(i)} }
func ZeroRao() Rao           { return Rao{decimal.Zero} }

// RaoToTAO converts an integer rao amount to TAO, losslessly: both
// denominations share the same 9-fractional-digit scale so the
// conversion is an exact division, never a rounding operation.
func RaoToTAO(r Rao) TAO {
	return TAO{r.d.DivRound(RaoPerTAO, 9)}
}

// TAOToRao converts a TAO amount back to its integer rao
// representation. Panics semantics are avoided: any TAO value
// constructed by this package is already truncated to 9 fractional
// digits, so the multiplication below always yields an integral rao
// count.
func TAOToRao(t TAO) Rao {
	return Rao{t.d.Mul(RaoPerTAO).Truncate(0)}
}

// Arithmetic — thin wrappers so call sites never import shopspring/decimal
// directly and never accidentally mix a TAO with a USD.

func (t TAO) Add(o TAO) TAO      { return TAO{t.d.Add(o.d)} }
func (t TAO) Sub(o TAO) TAO      { return TAO{t.d.Sub(o.d)} }
func (t TAO) Neg() TAO           { return TAO{t.d.Neg()} }
func (t TAO) Mul(f decimal.Decimal) TAO { return TAO{t.d.Mul(f).Truncate(9)} }
func (t TAO) MulPercent(p Percent) TAO  { return TAO{t.d.Mul(p.d).Truncate(9)} }
func (t TAO) Div(o TAO) (decimal.Decimal, bool) {
	if o.d.IsZero() {
		return decimal.Zero, false
	}
	return t.d.Div(o.d), true
}
func (t TAO) Cmp(o TAO) int       { return t.d.Cmp(o.d) }
func (t TAO) IsZero() bool        { return t.d.IsZero() }
func (t TAO) IsNegative() bool    { return t.d.IsNegative() }
func (t TAO) IsPositive() bool    { return t.d.IsPositive() }
func (t TAO) Abs() TAO            { return TAO{t.d.Abs()} }
func (t TAO) Float64() float64    { f, _ := t.d.Float64(); return f }
func (t TAO) Decimal() decimal.Decimal { return t.d }
func (t TAO) String() string      { return t.d.StringFixed(9) }

func (u USD) Add(o USD) USD   { return USD{u.d.Add(o.d)} }
func (u USD) Sub(o USD) USD   { return USD{u.d.Sub(o.d)} }
func (u USD) IsZero() bool    { return u.d.IsZero() }
func (u USD) Float64() float64 { f, _ := u.d.Float64(); return f }
func (u USD) String() string  { return u.d.StringFixed(2) }

func (p Percent) Float64() float64 { f, _ := p.d.Float64(); return f }
func (p Percent) Cmp(o Percent) int { return p.d.Cmp(o.d) }
func (p Percent) String() string    { return p.d.StringFixed(6) }
func (p Percent) Decimal() decimal.Decimal { return p.d }

func MaxTAO(a, b TAO) TAO {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func MinTAO(a, b TAO) TAO {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// SQL driver plumbing — monetary columns are stored as TEXT (decimal
// string) so no float precision is lost round-tripping through sqlite.

func (t TAO) Value() (driver.Value, error) { return t.d.String(), nil }
func (t *TAO) Scan(src interface{}) error {
	d, err := scanDecimal(src)
	if err != nil {
		return err
	}
	t.d = d.Truncate(9)
	return nil
}

func (u USD) Value() (driver.Value, error) { return u.d.String(), nil }
func (u *USD) Scan(src interface{}) error {
	d, err := scanDecimal(src)
	if err != nil {
		return err
	}
	u.d = d.Truncate(2)
	return nil
}

func (p Percent) Value() (driver.Value, error) { return p.d.String(), nil }
func (p *Percent) Scan(src interface{}) error {
	d, err := scanDecimal(src)
	if err != nil {
		return err
	}
	p.d = d.Truncate(6)
	return nil
}

func scanDecimal(src interface{}) (decimal.Decimal, error) {
	switch v := src.(type) {
	case nil:
		return decimal.Zero, nil
	case string:
		return decimal.NewFromString(v)
	case []byte:
		return decimal.NewFromString(string(v))
	case float64:
		return decimal.NewFromFloat(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported scan source type %T for money value", src)
	}
}
