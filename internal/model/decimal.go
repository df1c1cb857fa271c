package model

import (
	"database/sql/driver"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// FixedDecimals is the number of decimals in engine fixed-point amounts.
const FixedDecimals = 6

// Decimal wraps shopspring/decimal for GORM compatibility
type Decimal struct {
	decimal.Decimal
}

func NewDecimal(d decimal.Decimal) Decimal {
	return Decimal{Decimal: d}
}

func NewDecimalFromString(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{Decimal: d}, nil
}

func NewDecimalFromInt(i int64) Decimal {
	return Decimal{Decimal: decimal.NewFromInt(i)}
}

// NewDecimalFromUint64 keeps the full uint64 range, which int64 cannot.
func NewDecimalFromUint64(u uint64) Decimal {
	return Decimal{Decimal: decimal.NewFromBigInt(new(big.Int).SetUint64(u), 0)}
}

// FromFixed converts a raw engine amount (6 decimals) to its display value.
func FromFixed(u uint64) Decimal {
	return Decimal{Decimal: decimal.NewFromBigInt(new(big.Int).SetUint64(u), -FixedDecimals)}
}

// FromSignedFixed is FromFixed for signed engine amounts.
func FromSignedFixed(i int64) Decimal {
	return Decimal{Decimal: decimal.New(i, -FixedDecimals)}
}

// Fixed converts a display value back to raw engine units, truncating extra
// decimals.
func (d Decimal) Fixed() (uint64, error) {
	return d.Shift(FixedDecimals).Truncate(0).Uint64()
}

// Uint64 returns the integer value of d. Fractions, negatives and values
// beyond uint64 are rejected.
func (d Decimal) Uint64() (uint64, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("negative value %s", d.String())
	}
	if !d.Decimal.Equal(d.Decimal.Truncate(0)) {
		return 0, fmt.Errorf("fractional value %s", d.String())
	}
	b := d.Decimal.BigInt()
	if !b.IsUint64() {
		return 0, fmt.Errorf("value %s overflows uint64", d.String())
	}
	return b.Uint64(), nil
}

func (d Decimal) Int64() (int64, error) {
	if !d.Decimal.Equal(d.Decimal.Truncate(0)) {
		return 0, fmt.Errorf("fractional value %s", d.String())
	}
	b := d.Decimal.BigInt()
	if !b.IsInt64() {
		return 0, fmt.Errorf("value %s overflows int64", d.String())
	}
	return b.Int64(), nil
}

func (d Decimal) Value() (driver.Value, error) {
	return d.Decimal.String(), nil
}

func (d *Decimal) Scan(value interface{}) error {
	if value == nil {
		d.Decimal = decimal.Zero
		return nil
	}

	switch v := value.(type) {
	case []byte:
		dec, err := decimal.NewFromString(string(v))
		if err != nil {
			return err
		}
		d.Decimal = dec
	case string:
		dec, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		d.Decimal = dec
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("cannot scan %v into Decimal", v)
		}
		d.Decimal = decimal.NewFromFloat(v)
	case int64:
		d.Decimal = decimal.NewFromInt(v)
	default:
		return fmt.Errorf("cannot scan type %T into Decimal", value)
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Decimal.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Decimal) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	dec, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	d.Decimal = dec
	return nil
}

func (d Decimal) Add(d2 Decimal) Decimal {
	return Decimal{Decimal: d.Decimal.Add(d2.Decimal)}
}

func (d Decimal) Sub(d2 Decimal) Decimal {
	return Decimal{Decimal: d.Decimal.Sub(d2.Decimal)}
}

func (d Decimal) Mul(d2 Decimal) Decimal {
	return Decimal{Decimal: d.Decimal.Mul(d2.Decimal)}
}

func (d Decimal) Shift(places int32) Decimal {
	return Decimal{Decimal: d.Decimal.Shift(places)}
}

func (d Decimal) Truncate(precision int32) Decimal {
	return Decimal{Decimal: d.Decimal.Truncate(precision)}
}

func (d Decimal) IsZero() bool {
	return d.Decimal.IsZero()
}

func (d Decimal) IsNegative() bool {
	return d.Decimal.IsNegative()
}

func (d Decimal) LessThan(d2 Decimal) bool {
	return d.Decimal.LessThan(d2.Decimal)
}

func (d Decimal) GreaterThan(d2 Decimal) bool {
	return d.Decimal.GreaterThan(d2.Decimal)
}

func (d Decimal) Equal(d2 Decimal) bool {
	return d.Decimal.Equal(d2.Decimal)
}

// Zero returns a zero decimal
func Zero() Decimal {
	return Decimal{Decimal: decimal.Zero}
}
