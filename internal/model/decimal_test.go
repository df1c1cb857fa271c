package model

import (
	"encoding/json"
	"math"
	"testing"
)

func TestDecimalFixedPoint(t *testing.T) {
	tests := []struct {
		name    string
		raw     uint64
		display string
	}{
		{"one unit", 1_000_000, "1"},
		{"fraction", 1_234_567, "1.234567"},
		{"smallest", 1, "0.000001"},
		{"zero", 0, "0"},
		{"max", math.MaxUint64, "18446744073709.551615"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := FromFixed(tt.raw)
			if d.String() != tt.display {
				t.Errorf("FromFixed(%d) = %s, want %s", tt.raw, d.String(), tt.display)
			}
			back, err := d.Fixed()
			if err != nil {
				t.Fatalf("Fixed() error: %v", err)
			}
			if back != tt.raw {
				t.Errorf("Fixed() = %d, want %d", back, tt.raw)
			}
		})
	}
}

func TestDecimalFixedTruncates(t *testing.T) {
	d, err := NewDecimalFromString("1.0000019")
	if err != nil {
		t.Fatal(err)
	}
	got, err := d.Fixed()
	if err != nil {
		t.Fatal(err)
	}
	if got != 1_000_001 {
		t.Errorf("Fixed() = %d, want 1000001", got)
	}

	neg, _ := NewDecimalFromString("-1")
	if _, err := neg.Fixed(); err == nil {
		t.Error("expected error for negative value")
	}
}

func TestDecimalSignedFixed(t *testing.T) {
	if got := FromSignedFixed(-2_500_000).String(); got != "-2.5" {
		t.Errorf("FromSignedFixed = %s, want -2.5", got)
	}
}

func TestDecimalIntegerConversions(t *testing.T) {
	u := NewDecimalFromUint64(math.MaxUint64)
	got, err := u.Uint64()
	if err != nil || got != math.MaxUint64 {
		t.Errorf("Uint64() = %d, %v", got, err)
	}
	if _, err := u.Int64(); err == nil {
		t.Error("expected int64 overflow")
	}

	half, _ := NewDecimalFromString("0.5")
	if _, err := half.Uint64(); err == nil {
		t.Error("expected error for fractional value")
	}

	i, err := NewDecimalFromInt(-42).Int64()
	if err != nil || i != -42 {
		t.Errorf("Int64() = %d, %v", i, err)
	}
}

func TestDecimalJSONSerialization(t *testing.T) {
	tests := []struct {
		name     string
		input    Decimal
		expected string
	}{
		{"integer", NewDecimalFromInt(100), `"100"`},
		{"fixed", FromFixed(123_450_000), `"123.45"`},
		{"zero", Zero(), `"0"`},
		{"negative", FromSignedFixed(-50_500_000), `"-50.5"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.input)
			if err != nil {
				t.Fatalf("Marshal error: %v", err)
			}
			if string(data) != tt.expected {
				t.Errorf("Marshal: got %s, want %s", string(data), tt.expected)
			}

			var decoded Decimal
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Unmarshal error: %v", err)
			}
			if !decoded.Equal(tt.input) {
				t.Errorf("Unmarshal: got %v, want %v", decoded, tt.input)
			}
		})
	}

	var unquoted Decimal
	if err := json.Unmarshal([]byte(`42`), &unquoted); err != nil || !unquoted.Equal(NewDecimalFromInt(42)) {
		t.Errorf("unquoted number: got %v, %v", unquoted, err)
	}
}

func TestDecimalScan(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    string
		wantErr bool
	}{
		{"nil", nil, "0", false},
		{"bytes", []byte("12.5"), "12.5", false},
		{"string", "18446744073709551615", "18446744073709551615", false},
		{"int64", int64(-7), "-7", false},
		{"float64", 0.25, "0.25", false},
		{"nan", math.NaN(), "", true},
		{"bool", true, "", true},
		{"garbage", "abc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Decimal
			err := d.Scan(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Scan(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if !tt.wantErr && d.String() != tt.want {
				t.Errorf("Scan(%v) = %s, want %s", tt.value, d.String(), tt.want)
			}
		})
	}

	v, err := NewDecimalFromInt(5).Value()
	if err != nil || v != "5" {
		t.Errorf("Value() = %v, %v", v, err)
	}
}

func TestDecimalComparison(t *testing.T) {
	a := FromFixed(5_000_000)
	b := FromFixed(10_000_000)
	if !a.LessThan(b) || b.LessThan(a) {
		t.Error("LessThan mismatch")
	}
	if !b.GreaterThan(a) {
		t.Error("GreaterThan mismatch")
	}
	if !a.Add(a).Equal(b) {
		t.Errorf("Add: got %s", a.Add(a))
	}
	if !b.Sub(a).Sub(a).IsZero() {
		t.Error("Sub to zero")
	}
}
