// Package pulpa converts between human-readable PULPA amounts and the
// fixed-point base units the ERC-20 contract works in. All arithmetic is
// arbitrary precision; floating point is never used for token amounts.
package pulpa

import (
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the PULPA token's on-chain decimals value.
const Decimals = 18

// ParseError is returned when an amount string cannot be converted to
// base units.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid token amount %q: %s", e.Input, e.Reason)
}

// ToBaseUnits converts a decimal amount string (e.g. "2.5") to base units
// (amount * 10^18). The fractional part is padded or truncated to exactly
// Decimals digits, so precision beyond 18 decimals is dropped.
func ToBaseUnits(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, &ParseError{Input: amount, Reason: "empty string"}
	}

	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		return nil, &ParseError{Input: amount, Reason: "multiple decimal points"}
	}

	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if whole == "" && frac == "" {
		return nil, &ParseError{Input: amount, Reason: "no digits"}
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return nil, &ParseError{Input: amount, Reason: "not a non-negative decimal number"}
	}

	if len(frac) > Decimals {
		frac = frac[:Decimals]
	}
	for len(frac) < Decimals {
		frac += "0"
	}

	units, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, &ParseError{Input: amount, Reason: "not parseable as integer"}
	}
	return units, nil
}

// FromBaseUnits converts base units back to a decimal amount string,
// stripping trailing fractional zeros. The fractional part is omitted
// entirely when it is zero.
func FromBaseUnits(units *big.Int) string {
	s := units.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}

	whole := s[:len(s)-Decimals]
	frac := strings.TrimRight(s[len(s)-Decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
