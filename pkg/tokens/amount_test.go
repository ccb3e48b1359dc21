package tokens

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals uint8
		expected string
		wantErr  bool
	}{
		{name: "whole amount", amount: "100", decimals: 6, expected: "100000000"},
		{name: "fractional amount", amount: "1.5", decimals: 6, expected: "1500000"},
		{name: "full precision", amount: "0.000001", decimals: 6, expected: "1"},
		{name: "excess precision truncates", amount: "0.0000019", decimals: 6, expected: "1"},
		{name: "zero", amount: "0", decimals: 6, expected: "0"},
		{name: "eighteen decimals", amount: "2.25", decimals: 18, expected: "2250000000000000000"},
		{name: "negative rejected", amount: "-1", decimals: 6, wantErr: true},
		{name: "garbage rejected", amount: "one hundred", decimals: 6, wantErr: true},
		{name: "empty rejected", amount: "", decimals: 6, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := ParseAmount(tt.amount, tt.decimals)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, raw.String())
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.5", FormatAmount(big.NewInt(1500000), 6))
	assert.Equal(t, "0.000001", FormatAmount(big.NewInt(1), 6))
	assert.Equal(t, "100", FormatAmount(big.NewInt(100000000), 6))
	assert.Equal(t, "0", FormatAmount(nil, 6))
}

func TestFormatParseRoundTrip(t *testing.T) {
	raw, err := ParseAmount("123.456789", 6)
	assert.NoError(t, err)
	assert.Equal(t, "123.456789", FormatAmount(raw, 6))
}
