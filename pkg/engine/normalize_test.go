package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]interface{}
		expected string // "" means not actionable
	}{
		{name: "canonical kind passes through", raw: map[string]interface{}{"action": "send_payment"}, expected: "send_payment"},
		{name: "plural schedule alias", raw: map[string]interface{}{"action": "schedule_payments"}, expected: "schedule_payment"},
		{name: "plural recurring alias", raw: map[string]interface{}{"action": "recurring_payments"}, expected: "recurring_payment"},
		{name: "singular open order alias", raw: map[string]interface{}{"action": "get_open_order"}, expected: "get_open_orders"},
		{name: "send payments alias", raw: map[string]interface{}{"action": "send_payments"}, expected: "send_parallel"},
		{name: "add token alias", raw: map[string]interface{}{"action": "add_token"}, expected: "track_token"},
		{name: "track contract alias", raw: map[string]interface{}{"action": "track_contract"}, expected: "track_token"},
		{name: "retired kind dropped", raw: map[string]interface{}{"action": "start_agent"}, expected: ""},
		{name: "retired status dropped", raw: map[string]interface{}{"action": "status"}, expected: ""},
		{name: "non-string kind dropped", raw: map[string]interface{}{"action": 7.0}, expected: ""},
		{name: "missing kind dropped", raw: map[string]interface{}{"token": "AlphaUSD"}, expected: ""},
		{name: "nil input dropped", raw: nil, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := Normalize(tt.raw)
			if tt.expected == "" {
				assert.Nil(t, intent)
				return
			}
			assert.NotNil(t, intent)
			assert.Equal(t, tt.expected, intent.Kind)
		})
	}
}

func TestNormalizeKeepsParams(t *testing.T) {
	intent := Normalize(map[string]interface{}{
		"action": "send_payment",
		"token":  "AlphaUSD",
		"amount": "10",
		"to":     "0x2222222222222222222222222222222222222222",
	})
	assert.NotNil(t, intent)
	assert.Equal(t, "AlphaUSD", intent.Params["token"])
	assert.Equal(t, "10", intent.Params["amount"])

	// The kind itself is not duplicated into params.
	_, ok := intent.Params["action"]
	assert.False(t, ok)
}
