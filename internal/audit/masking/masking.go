// Package masking redacts account holder contact data before it is written
// to the audit trail.
package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = map[string]struct{}{
	"email":        {},
	"phone":        {},
	"tax_number":   {},
	"contact_name": {},
	"address":      {},
}

// MaskValue keeps the last four characters of value.
func MaskValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	runes := []rune(trimmed)
	if len(runes) <= 4 {
		return maskToken
	}
	return maskToken + string(runes[len(runes)-4:])
}

// MaskJSON returns a copy of input with sensitive string values masked.
// Nested maps are walked so change sets keep their shape.
func MaskJSON(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		masked[trimmedKey] = maskField(trimmedKey, value)
	}
	return masked
}

func maskField(key string, value any) any {
	switch cast := value.(type) {
	case map[string]any:
		if _, sensitive := sensitiveKeys[strings.ToLower(key)]; sensitive {
			out := make(map[string]any, len(cast))
			for k, v := range cast {
				if s, ok := v.(string); ok {
					out[k] = MaskValue(s)
					continue
				}
				out[k] = v
			}
			return out
		}
		return MaskJSON(cast)
	case string:
		if _, sensitive := sensitiveKeys[strings.ToLower(key)]; sensitive {
			return MaskValue(cast)
		}
		return cast
	default:
		return value
	}
}
