// Package engine turns normalized intents into ordered chain transactions.
package engine

import (
	"github.com/sisyphus-fi/tempo-engine/pkg/models"
)

// retiredKinds are action kinds the engine no longer executes. Intents from
// older assistant prompts may still carry them.
var retiredKinds = map[string]bool{
	"add_strategy":    true,
	"remove_strategy": true,
	"pause_strategy":  true,
	"resume_strategy": true,
	"start_agent":     true,
	"stop_agent":      true,
	"kill":            true,
	"resume_agent":    true,
	"status":          true,
	"get_strategies":  true,
	"get_positions":   true,
	"get_performance": true,
}

// kindAliases rewrites historical and typo variants to canonical kinds.
var kindAliases = map[string]string{
	"schedule_payments":    "schedule_payment",
	"recurring_payments":   "recurring_payment",
	"get_open_order":       "get_open_orders",
	"send_payments":        "send_parallel",
	"add_token_to_balance": "track_token",
	"add_token":            "track_token",
	"track_contract":       "track_token",
}

// Normalize canonicalizes a raw intent object. It returns nil when the
// intent carries no actionable kind, so the caller can fall back to a plain
// informational response instead of failing. Field-level validation is left
// to whichever component consumes each field.
func Normalize(raw map[string]interface{}) *models.Intent {
	if raw == nil {
		return nil
	}

	kind, ok := raw["action"].(string)
	if !ok || kind == "" {
		return nil
	}
	if retiredKinds[kind] {
		return nil
	}
	if canonical, ok := kindAliases[kind]; ok {
		kind = canonical
	}

	params := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if k == "action" {
			continue
		}
		params[k] = v
	}

	return &models.Intent{Kind: kind, Params: params}
}
