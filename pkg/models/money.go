package models

import "github.com/shopspring/decimal"

// Monetary amounts travel through the gateway as decimals but are stored in
// ledgers as integer micro-USD, so concurrent increments stay exact. Costs are
// rounded to 4 decimal places, well inside micro-USD granularity, so the
// round-trip is lossless.

// MicrosFromUSD converts a USD amount to integer micro-USD.
func MicrosFromUSD(usd decimal.Decimal) int64 {
	return usd.Shift(6).Round(0).IntPart()
}

// USDFromMicros converts integer micro-USD back to a USD decimal.
func USDFromMicros(micros int64) decimal.Decimal {
	return decimal.New(micros, -6)
}
