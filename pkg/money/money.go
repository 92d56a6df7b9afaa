// Copyright 2025 Certen Protocol

// Package money implements fixed-point decimal amounts over math/big.Int so
// that ledger arithmetic never touches a float. Amounts are always carried
// alongside a currency code; operations across mismatched currencies fail
// closed rather than silently coercing.
package money

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Amount is a fixed-point decimal value: unscaled * 10^-scale, tagged with
// a currency code. Two Amounts are only comparable/combinable when their
// Currency and Scale match.
type Amount struct {
	Currency string
	Scale    int
	unscaled *big.Int
}

// Zero returns the additive identity for a currency at the given scale.
func Zero(currency string, scale int) Amount {
	return Amount{Currency: currency, Scale: scale, unscaled: big.NewInt(0)}
}

// Parse converts a decimal string like "-12.3400" into an Amount at the
// given scale. The string's fractional part must not exceed scale digits;
// shorter fractions are zero-padded. The string must match
// `^-?[0-9]+(\.[0-9]{0,scale})?$`: no surrounding whitespace, no leading
// '+', and at least one digit before an optional '.'.
func Parse(currency string, scale int, s string) (Amount, error) {
	if currency == "" {
		return Amount{}, fmt.Errorf("%w: empty currency", ErrInvalidAmount)
	}
	if scale < 0 {
		return Amount{}, fmt.Errorf("%w: negative scale", ErrInvalidAmount)
	}
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty amount string", ErrInvalidAmount)
	}
	if s != strings.TrimSpace(s) {
		return Amount{}, fmt.Errorf("%w: %q has leading/trailing whitespace", ErrInvalidAmount, s)
	}

	raw := s
	neg := false
	switch raw[0] {
	case '-':
		neg = true
		raw = raw[1:]
	case '+':
		return Amount{}, fmt.Errorf("%w: %q has a leading '+'", ErrInvalidAmount, s)
	}
	if raw == "" {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	intPart := raw
	fracPart := ""
	if idx := strings.IndexByte(raw, '.'); idx >= 0 {
		intPart = raw[:idx]
		fracPart = raw[idx+1:]
	}
	if intPart == "" {
		return Amount{}, fmt.Errorf("%w: %q has no digits before the decimal point", ErrInvalidAmount, s)
	}
	if len(fracPart) > scale {
		return Amount{}, fmt.Errorf("%w: %q has more than %d fractional digits", ErrInvalidAmount, s, scale)
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return Amount{}, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, s)
		}
	}
	fracPart += strings.Repeat("0", scale-len(fracPart))

	digits := intPart + fracPart
	unscaled, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if neg {
		unscaled.Neg(unscaled)
	}
	return Amount{Currency: currency, Scale: scale, unscaled: unscaled}, nil
}

// String formats the Amount back into a decimal string. Parsing a.String()
// round-trips to an equal Amount, and String of Parse(s) round-trips to the
// canonical decimal form of s (zero-padded to Scale, no trailing zero
// trimming beyond that).
func (a Amount) String() string {
	if a.unscaled == nil {
		a.unscaled = big.NewInt(0)
	}
	neg := a.unscaled.Sign() < 0
	abs := new(big.Int).Abs(a.unscaled)
	digits := abs.String()

	if a.Scale == 0 {
		if neg {
			return "-" + digits
		}
		return digits
	}

	for len(digits) <= a.Scale {
		digits = "0" + digits
	}
	intPart := digits[:len(digits)-a.Scale]
	fracPart := digits[len(digits)-a.Scale:]
	out := intPart + "." + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

func (a Amount) checkCompatible(b Amount) error {
	if a.Currency != b.Currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, a.Currency, b.Currency)
	}
	if a.Scale != b.Scale {
		return fmt.Errorf("%w: scale %d vs %d for %s", ErrCurrencyMismatch, a.Scale, b.Scale, a.Currency)
	}
	return nil
}

// Add returns a+b. Fails with ErrCurrencyMismatch if currencies or scales differ.
func (a Amount) Add(b Amount) (Amount, error) {
	if err := a.checkCompatible(b); err != nil {
		return Amount{}, err
	}
	return Amount{Currency: a.Currency, Scale: a.Scale, unscaled: new(big.Int).Add(a.bigOrZero(), b.bigOrZero())}, nil
}

// Sub returns a-b. Fails with ErrCurrencyMismatch if currencies or scales differ.
func (a Amount) Sub(b Amount) (Amount, error) {
	if err := a.checkCompatible(b); err != nil {
		return Amount{}, err
	}
	return Amount{Currency: a.Currency, Scale: a.Scale, unscaled: new(big.Int).Sub(a.bigOrZero(), b.bigOrZero())}, nil
}

// Neg returns -a.
func (a Amount) Neg() Amount {
	return Amount{Currency: a.Currency, Scale: a.Scale, unscaled: new(big.Int).Neg(a.bigOrZero())}
}

// Abs returns |a|.
func (a Amount) Abs() Amount {
	return Amount{Currency: a.Currency, Scale: a.Scale, unscaled: new(big.Int).Abs(a.bigOrZero())}
}

// IsZero reports whether a is exactly zero.
func (a Amount) IsZero() bool { return a.bigOrZero().Sign() == 0 }

// IsPositive reports whether a is strictly greater than zero.
func (a Amount) IsPositive() bool { return a.bigOrZero().Sign() > 0 }

// IsNegative reports whether a is strictly less than zero.
func (a Amount) IsNegative() bool { return a.bigOrZero().Sign() < 0 }

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
// Returns ErrCurrencyMismatch if currencies/scales mismatch.
func (a Amount) Cmp(b Amount) (int, error) {
	if err := a.checkCompatible(b); err != nil {
		return 0, err
	}
	return a.bigOrZero().Cmp(b.bigOrZero()), nil
}

// Equal reports whether a and b represent the same currency, scale and value.
func (a Amount) Equal(b Amount) bool {
	c, err := a.Cmp(b)
	return err == nil && c == 0
}

func (a Amount) bigOrZero() *big.Int {
	if a.unscaled == nil {
		return big.NewInt(0)
	}
	return a.unscaled
}

// Unscaled exposes the underlying integer value (unscaled * 10^-Scale).
func (a Amount) Unscaled() *big.Int { return new(big.Int).Set(a.bigOrZero()) }

// jsonAmount is the wire/hash shape of an Amount: {amount, currency,
// decimals}, never the unexported big.Int directly.
type jsonAmount struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Decimals int    `json:"decimals"`
}

// MarshalJSON renders a as {"amount": "...", "currency": "...", "decimals": n}.
// This is also what every canonical hash (event hashes, ledger snapshots,
// the Global State Hash) sees, so it is the only representation of the
// value that participates in hashing.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonAmount{Amount: a.String(), Currency: a.Currency, Decimals: a.Scale})
}

// UnmarshalJSON parses the {amount, currency, decimals} wire shape back
// into an Amount.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var j jsonAmount
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	parsed, err := Parse(j.Currency, j.Decimals, j.Amount)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
