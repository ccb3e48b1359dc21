// Package exchange drives the stablecoin DEX: quotes and swaps, tick-priced
// limit orders, pair creation and order-id recovery from receipts.
package exchange

import "math"

// Tick constants for the order book. Prices are expressed as deviation from
// the 1:1 peg in units of 1/100000, quantized to the tick spacing and
// clamped to a band of two percent around the peg.
const (
	TickSpacing = 10
	MaxTick     = 2000
	MinTick     = -2000
)

// PriceToTick quantizes a human price into an order book tick. Rounding is
// to nearest with ties away from zero; out-of-band prices clamp to the
// boundary tick instead of failing.
func PriceToTick(price float64) int {
	raw := math.Round((price - 1) * 100000)
	tick := int(math.Round(raw/TickSpacing)) * TickSpacing

	if tick > MaxTick {
		return MaxTick
	}
	if tick < MinTick {
		return MinTick
	}
	return tick
}
