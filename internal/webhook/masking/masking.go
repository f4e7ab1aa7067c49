// Package masking redacts secrets from Stripe payloads before they reach the
// webhook audit log.
package masking

import (
	"encoding/json"
	"strings"
)

const maskToken = "****"

// SensitiveKeys are object fields never written to the audit log in clear.
var SensitiveKeys = []string{"client_secret"}

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}

	return prefix + maskToken + remainder[len(remainder)-4:]
}

// MaskFields returns raw with every string under one of keys masked, at any
// depth. Payloads that are not JSON objects come back unchanged.
func MaskFields(raw json.RawMessage, keys ...string) json.RawMessage {
	if len(raw) == 0 || len(keys) == 0 {
		return raw
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return raw
	}

	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	if !maskObject(doc, set) {
		return raw
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return raw
	}
	return out
}

func maskObject(obj map[string]any, keys map[string]struct{}) bool {
	changed := false
	for key, value := range obj {
		if _, ok := keys[key]; ok {
			if s, isString := value.(string); isString && s != "" {
				obj[key] = MaskSecret(s)
				changed = true
				continue
			}
		}
		if maskValue(value, keys) {
			changed = true
		}
	}
	return changed
}

func maskValue(value any, keys map[string]struct{}) bool {
	switch cast := value.(type) {
	case map[string]any:
		return maskObject(cast, keys)
	case []any:
		changed := false
		for _, item := range cast {
			if maskValue(item, keys) {
				changed = true
			}
		}
		return changed
	default:
		return false
	}
}

// splitPrefix keeps the readable part of Stripe secrets such as
// "pi_123_secret_abc".
func splitPrefix(value string) (string, string) {
	lastUnderscore := strings.LastIndex(value, "_")
	if lastUnderscore == -1 || lastUnderscore == len(value)-1 {
		return "", value
	}
	return value[:lastUnderscore+1], value[lastUnderscore+1:]
}
