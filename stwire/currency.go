package stwire

import "fmt"

// Currency is the ledger's currency tag, encoded as a zero-payload union
// variant: the discriminant byte is the entire wire footprint.
type Currency uint8

const (
	// CurrencyUsd is the single modeled currency. Amounts are integers in
	// minor units, 1/100 of a dollar.
	CurrencyUsd Currency = 0
)

// String returns the lowercase name used in request paths.
func (c Currency) String() string {
	switch c {
	case CurrencyUsd:
		return "usd"
	default:
		return fmt.Sprintf("unknown<%d>", uint8(c))
	}
}

// FormatValue renders an amount of minor units for display, e.g. 12345
// becomes "$123.45".
func (c Currency) FormatValue(value int64) string {
	sign := ""
	units := uint64(value)
	if value < 0 {
		sign = "-"
		units = uint64(-(value + 1)) + 1
	}

	return fmt.Sprintf("%s$%d.%02d", sign, units/100, units%100)
}
