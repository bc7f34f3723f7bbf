package utils

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Uint256ToString renders an amount as a decimal string, "0" for nil
func Uint256ToString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// Uint256FromString parses a decimal amount string, nil input yields zero
func Uint256FromString(s string) *uint256.Int {
	if s == "" {
		return uint256.NewInt(0)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return uint256.NewInt(0)
	}
	return v
}

// ParseAmount parses a decimal amount string and reports malformed input
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}
