package ergo

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// All on-chain values are denominated in nanoERG (int64), the same
// encoding used on the blockchain. Conversion to decimal ERG happens
// only at display boundaries.
const (
	NanoErgsPerErg    = 1_000_000_000
	ErgDecimals       = 9
	SafeMinBoxValue   = 1_000_000 // smallest value a box may carry without being dust
	RecommendedMinFee = 1_100_000 // default miner fee for a simple transaction
)

// MaxNanoErgs is the total emission, a generous upper bound for any
// single value on the wire.
const MaxNanoErgs = 97_739_924 * int64(NanoErgsPerErg)

// FormatErg renders a nanoERG amount as a decimal ERG string.
func FormatErg(nanoErg int64) string {
	return decimal.New(nanoErg, -ErgDecimals).String()
}

// ErgAmount returns a nanoERG amount as a decimal ERG value.
func ErgAmount(nanoErg int64) decimal.Decimal {
	return decimal.New(nanoErg, -ErgDecimals)
}

// FormatTokenAmount renders a raw token amount using the token's
// registered number of decimals.
func FormatTokenAmount(amount int64, decimals int) string {
	return decimal.New(amount, -int32(decimals)).String()
}

// TokenValue returns a raw token amount as a decimal value using the
// token's registered number of decimals.
func TokenValue(amount int64, decimals int) decimal.Decimal {
	return decimal.New(amount, -int32(decimals))
}

// ParseErg parses a decimal ERG string into nanoERG.
// Rejects negatives and sub-nanoERG precision.
func ParseErg(amt string) (int64, error) {
	d, err := decimal.NewFromString(amt)
	if err != nil {
		return 0, fmt.Errorf("invalid ERG amount %q: %v", amt, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid ERG amount %q: negative values are not allowed", amt)
	}
	nano := d.Shift(ErgDecimals)
	if !nano.IsInteger() {
		return 0, fmt.Errorf("invalid ERG amount %q: more than %d decimal places", amt, ErgDecimals)
	}
	if nano.GreaterThan(decimal.NewFromInt(MaxNanoErgs)) {
		return 0, fmt.Errorf("invalid ERG amount %q: above total emission", amt)
	}
	return nano.IntPart(), nil
}
