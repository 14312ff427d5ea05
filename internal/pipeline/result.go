package pipeline

import (
	"strconv"
	"strings"
)

// StepResult is the normalized outcome of a single step. Results are built
// through Succeeded, Failed or Normalize and treated as read-only afterwards.
type StepResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
	Errors  []string       `json:"errors"`
}

// Succeeded builds a successful result.
func Succeeded(message string, data map[string]any) StepResult {
	return Normalize(StepResult{Success: true, Message: message, Data: data})
}

// Failed builds a failed result. When no errors are given the message is
// used as the single error.
func Failed(message string, data map[string]any, errs ...string) StepResult {
	return Normalize(StepResult{Success: false, Message: message, Data: data, Errors: errs})
}

// Normalize fills defaults so that Data is never nil, Errors is never nil and
// a failed result always carries at least one error.
func Normalize(r StepResult) StepResult {
	if r.Message == "" {
		if r.Success {
			r.Message = "Step completed."
		} else {
			r.Message = "Step failed."
		}
	}

	if r.Data == nil {
		r.Data = map[string]any{}
	}

	errs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		if e != "" {
			errs = append(errs, e)
		}
	}
	if !r.Success && len(errs) == 0 {
		errs = append(errs, r.Message)
	}
	r.Errors = errs

	return r
}

// normalizeMap converts a loosely typed result such as {"success": true,
// "message": "..."} into a StepResult. ok is false when the map carries no
// success key. The success value is coerced with truthy.
func normalizeMap(m map[string]any) (StepResult, bool) {
	raw, ok := m["success"]
	if !ok {
		return StepResult{}, false
	}

	r := StepResult{Success: truthy(raw)}
	if msg, ok := m["message"].(string); ok {
		r.Message = msg
	}
	if data, ok := m["data"].(map[string]any); ok {
		r.Data = data
	}

	switch errs := m["errors"].(type) {
	case []string:
		r.Errors = errs
	case []any:
		for _, e := range errs {
			if s, ok := e.(string); ok {
				r.Errors = append(r.Errors, s)
			}
		}
	case string:
		r.Errors = []string{errs}
	}

	return Normalize(r), true
}

// truthy coerces a loosely typed flag: numbers are true when non-zero,
// strings parse as booleans ("1", "true", "FALSE", ...) and otherwise count
// as true unless empty or "0".
func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case uint64:
		return v != 0
	case float64:
		return v != 0
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
		return v != "" && v != "0"
	default:
		return true
	}
}
