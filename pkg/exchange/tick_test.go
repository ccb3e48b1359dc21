package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriceToTick(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		expected int
	}{
		{name: "peg", price: 1.0, expected: 0},
		{name: "tenth of a percent below", price: 0.999, expected: -100},
		{name: "tenth of a percent above", price: 1.001, expected: 100},
		{name: "lower band edge", price: 0.98, expected: -2000},
		{name: "upper band edge", price: 1.02, expected: 2000},
		{name: "above band clamps", price: 1.03, expected: 2000},
		{name: "below band clamps", price: 0.9, expected: -2000},
		{name: "sub-spacing rounds to nearest", price: 1.00004, expected: 0},
		{name: "half spacing rounds away from zero", price: 1.00005, expected: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PriceToTick(tt.price))
		})
	}
}

func TestPriceToTickBandProperties(t *testing.T) {
	// Every price in the band maps to a multiple of the tick spacing inside
	// the clamp range.
	for price := 0.98; price <= 1.02; price += 0.0001 {
		tick := PriceToTick(price)
		assert.Zero(t, tick%TickSpacing, "price %f", price)
		assert.GreaterOrEqual(t, tick, MinTick, "price %f", price)
		assert.LessOrEqual(t, tick, MaxTick, "price %f", price)
	}
}
