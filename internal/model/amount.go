package model

import (
	"fmt"
	"math/big"
	"strings"
)

// DefaultDecimals applies when the decoder could not resolve the token's
// decimals from the event.
const DefaultDecimals = 18

// Amount is a precision-safe token amount: the raw on-chain integer plus the
// token's decimal scale. No float conversion happens anywhere in the core;
// display strings are produced by exact decimal shifting.
type Amount struct {
	raw      *big.Int
	decimals int
	known    bool
}

// NewAmount builds an amount from a raw integer and a known decimal scale.
func NewAmount(raw *big.Int, decimals int) Amount {
	return Amount{raw: new(big.Int).Set(raw), decimals: decimals, known: true}
}

// NewRawAmount builds an amount whose decimal scale is unknown; the default
// of 18 is assumed for display and the raw value is preserved exactly.
func NewRawAmount(raw *big.Int) Amount {
	return Amount{raw: new(big.Int).Set(raw), decimals: DefaultDecimals, known: false}
}

// ParseAmount parses a human-readable decimal string ("100.5") at the given
// scale. Used at configuration and query boundaries, never on-chain data.
func ParseAmount(s string, decimals int) (Amount, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	whole, frac, _ := strings.Cut(strings.TrimPrefix(s, "-"), ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return Amount{}, fmt.Errorf("amount %q has more than %d fractional digits", s, decimals)
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	raw, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid decimal amount %q", s)
	}
	if neg {
		raw.Neg(raw)
	}
	a := NewAmount(raw, decimals)
	return a, nil
}

// Raw returns a copy of the unscaled integer value.
func (a Amount) Raw() *big.Int {
	if a.raw == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.raw)
}

// Decimals returns the decimal scale in effect.
func (a Amount) Decimals() int { return a.decimals }

// DecimalsKnown reports whether the scale came from the event rather than
// the 18-decimal default.
func (a Amount) DecimalsKnown() bool { return a.known }

// Sign returns -1, 0 or +1.
func (a Amount) Sign() int {
	if a.raw == nil {
		return 0
	}
	return a.raw.Sign()
}

// IsZero reports whether the amount is unset or zero.
func (a Amount) IsZero() bool { return a.Sign() == 0 }

// Units returns the amount in token units as an exact rational.
func (a Amount) Units() *big.Rat {
	if a.raw == nil {
		return new(big.Rat)
	}
	den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(a.decimals)), nil)
	return new(big.Rat).SetFrac(a.Raw(), den)
}

// ExceedsUnits reports whether the amount is strictly greater than the given
// threshold expressed in token units.
func (a Amount) ExceedsUnits(threshold int64) bool {
	return a.Units().Cmp(new(big.Rat).SetInt64(threshold)) > 0
}

// String renders the exact decimal form, e.g. "100", "0.5", "12.000001".
// This is the stored representation; correlation compares it byte-for-byte.
func (a Amount) String() string {
	if a.raw == nil {
		return "0"
	}
	raw := a.Raw()
	neg := raw.Sign() < 0
	raw.Abs(raw)

	s := raw.String()
	if a.decimals == 0 {
		if neg {
			return "-" + s
		}
		return s
	}
	if len(s) <= a.decimals {
		s = strings.Repeat("0", a.decimals-len(s)+1) + s
	}
	cut := len(s) - a.decimals
	whole, frac := s[:cut], strings.TrimRight(s[cut:], "0")
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// MarshalJSON renders the decimal string form.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", a.String())), nil
}

// UnmarshalJSON accepts the decimal string form at the stored scale.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseAmount(s, DefaultDecimals)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AmountFromStored rebuilds an amount from the persisted decimal string.
func AmountFromStored(s string) (Amount, error) {
	return ParseAmount(s, DefaultDecimals)
}
