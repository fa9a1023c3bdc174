package types

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// EtherDecimals is the number of decimals of the base currency and of the
// entitlement token.
const EtherDecimals = 18

// ErrOverflow is returned by the checked arithmetic helpers.
var ErrOverflow = errors.New("amount: uint256 overflow")

// ErrUnderflow is returned by Sub when the result would be negative.
var ErrUnderflow = errors.New("amount: uint256 underflow")

// Amount is an unsigned 256-bit quantity in the smallest unit (wei for the
// base currency, token base units for entitlements).
// The zero value is 0 and safe to use.
//
//nolint:recvcheck // Value receivers for arithmetic, pointer receivers for decoding.
type Amount struct {
	v uint256.Int
}

// NewAmount returns an Amount holding n.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// FromUint256 copies x into an Amount. A nil x yields zero.
func FromUint256(x *uint256.Int) Amount {
	var a Amount
	if x != nil {
		a.v.Set(x)
	}
	return a
}

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("amount: parse %q: empty string", s)
	}
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return Amount{}, nil
	}
	v, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return Amount{}, fmt.Errorf("amount: parse %q: %w", s, err)
	}
	return FromUint256(v), nil
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseUnits parses a decimal string such as "0.05" scaled by 10^decimals.
func ParseUnits(s string, decimals int) (Amount, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return Amount{}, fmt.Errorf("amount: parse units %q: empty string", s)
	}
	if len(frac) > decimals {
		return Amount{}, fmt.Errorf("amount: parse units %q: more than %d decimals", s, decimals)
	}
	for _, part := range []string{whole, frac} {
		if strings.IndexFunc(part, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
			return Amount{}, fmt.Errorf("amount: parse units %q: invalid digit", s)
		}
	}
	return ParseAmount(whole + frac + strings.Repeat("0", decimals-len(frac)))
}

// ParseEther parses an ether-denominated decimal string into wei.
func ParseEther(s string) (Amount, error) { return ParseUnits(s, EtherDecimals) }

// MustParseEther is like ParseEther but panics on error.
func MustParseEther(s string) Amount {
	a, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ──────────────────────────────────────────────────
// Arithmetic
// ──────────────────────────────────────────────────

// Add returns a+b or ErrOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.AddOverflow(&a.v, &b.v); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

// Sub returns a-b or ErrUnderflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	var out Amount
	if _, underflow := out.v.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, ErrUnderflow
	}
	return out, nil
}

// Mul returns a*b or ErrOverflow.
func (a Amount) Mul(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.v.MulOverflow(&a.v, &b.v); overflow {
		return Amount{}, ErrOverflow
	}
	return out, nil
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// IsZero reports whether a is 0.
func (a Amount) IsZero() bool { return a.v.IsZero() }

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool { return a.v.Eq(&b.v) }

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool { return a.v.Lt(&b.v) }

// Uint256 returns a copy of the underlying integer.
func (a Amount) Uint256() *uint256.Int { return new(uint256.Int).Set(&a.v) }

// ──────────────────────────────────────────────────
// Formatting
// ──────────────────────────────────────────────────

// String returns the base-10 representation.
func (a Amount) String() string { return a.v.Dec() }

// FormatUnits renders a as a decimal with the given number of decimals,
// trimming trailing zeros.
func (a Amount) FormatUnits(decimals int) string {
	s := a.v.Dec()
	if decimals <= 0 {
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// FormatEther renders a wei amount in ether.
func (a Amount) FormatEther() string { return a.FormatUnits(EtherDecimals) }

// MarshalText implements encoding.TextMarshaler. JSON encodes amounts as
// decimal strings so values above 2^53 survive.
func (a Amount) MarshalText() ([]byte, error) { return []byte(a.v.Dec()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(data []byte) error {
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer. Amounts are stored as decimal text.
func (a Amount) Value() (driver.Value, error) { return a.v.Dec(), nil }

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("amount: cannot scan negative %d", v)
		}
		*a = NewAmount(uint64(v))
		return nil
	default:
		return fmt.Errorf("amount: cannot scan %T into Amount", src)
	}
}
