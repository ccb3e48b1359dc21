package engine

import (
	"fmt"
	"strconv"

	"github.com/sisyphus-fi/tempo-engine/pkg/models"
)

// Param extraction helpers. Intents arrive as decoded JSON, so numbers show
// up as float64 and amounts may be either strings or numbers depending on
// the producer.

func stringParam(params map[string]interface{}, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", models.NewValidationError(key, "is required")
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", models.NewValidationError(key, "must be a non-empty string")
	}
	return s, nil
}

func optionalStringParam(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

// amountParam accepts a decimal string or a JSON number.
func amountParam(params map[string]interface{}, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", models.NewValidationError(key, "is required")
	}
	switch a := v.(type) {
	case string:
		if a == "" {
			return "", models.NewValidationError(key, "must not be empty")
		}
		return a, nil
	case float64:
		return strconv.FormatFloat(a, 'f', -1, 64), nil
	default:
		return "", models.NewValidationError(key, fmt.Sprintf("unsupported type %T", v))
	}
}

func int64Param(params map[string]interface{}, key string, required bool) (int64, error) {
	v, ok := params[key]
	if !ok || v == nil {
		if required {
			return 0, models.NewValidationError(key, "is required")
		}
		return 0, nil
	}
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, models.NewValidationError(key, "must be an integer")
		}
		return parsed, nil
	default:
		return 0, models.NewValidationError(key, fmt.Sprintf("unsupported type %T", v))
	}
}

func floatParam(params map[string]interface{}, key string) (float64, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, models.NewValidationError(key, "is required")
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, models.NewValidationError(key, "must be a number")
		}
		return parsed, nil
	default:
		return 0, models.NewValidationError(key, fmt.Sprintf("unsupported type %T", v))
	}
}

func boolParam(params map[string]interface{}, key string) (bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return false, models.NewValidationError(key, "is required")
	}
	b, ok := v.(bool)
	if !ok {
		return false, models.NewValidationError(key, "must be a boolean")
	}
	return b, nil
}

func transfersParam(params map[string]interface{}, key string) ([]models.Transfer, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, models.NewValidationError(key, "is required")
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, models.NewValidationError(key, "must be a list")
	}

	transfers := make([]models.Transfer, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil, models.NewValidationError(key, fmt.Sprintf("entry %d is not an object", i))
		}
		token, err := stringParam(entry, "token")
		if err != nil {
			return nil, err
		}
		amount, err := amountParam(entry, "amount")
		if err != nil {
			return nil, err
		}
		to, err := stringParam(entry, "to")
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, models.Transfer{Token: token, Amount: amount, To: to})
	}
	return transfers, nil
}
