// Package units converts between integer token amounts and their human
// readable decimal form.
package units

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const EtherDecimals int32 = 18

// FormatUnits renders amount with the given number of decimals, trailing
// zeros trimmed. A nil amount renders as "0".
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

func FormatEther(amount *big.Int) string {
	return FormatUnits(amount, EtherDecimals)
}

// ParseUnits parses "1.5" into 1.5 * 10^decimals. More fractional digits
// than decimals is an error rather than a silent truncation.
func ParseUnits(value string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: negative", value)
	}

	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimals", value, decimals)
	}
	return shifted.BigInt(), nil
}

func ParseEther(value string) (*big.Int, error) {
	return ParseUnits(value, EtherDecimals)
}
