// Package utils holds small validation helpers shared across the API
// surface.
package utils

import (
	"fmt"
	"unicode/utf8"
)

// Size limits for caller-supplied input (in bytes).
const (
	MaxParamsSize = 64 * 1024 // widget params map, JSON-encoded
	MaxTextSize   = 16 * 1024 // free text for intent routing
	MaxParamDepth = 8
)

// ValidateParams bounds a widget params map before it reaches the
// mapper: total encoded size, nesting depth, and UTF-8 cleanliness of
// string values.
func ValidateParams(params map[string]interface{}) error {
	if params == nil {
		return nil
	}
	size := 0
	if err := checkValue(params, 0, &size); err != nil {
		return err
	}
	if size > MaxParamsSize {
		return fmt.Errorf("params size %d bytes exceeds maximum %d", size, MaxParamsSize)
	}
	return nil
}

// ValidateText bounds free routing text.
func ValidateText(text string) error {
	if len(text) > MaxTextSize {
		return fmt.Errorf("text length %d bytes exceeds maximum %d", len(text), MaxTextSize)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("text is not valid UTF-8")
	}
	return nil
}

func checkValue(v interface{}, depth int, size *int) error {
	if depth > MaxParamDepth {
		return fmt.Errorf("params nesting depth exceeds maximum %d", MaxParamDepth)
	}

	switch val := v.(type) {
	case string:
		*size += len(val)
		if !utf8.ValidString(val) {
			return fmt.Errorf("param value is not valid UTF-8")
		}
	case map[string]interface{}:
		for k, item := range val {
			*size += len(k)
			if err := checkValue(item, depth+1, size); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, item := range val {
			if err := checkValue(item, depth+1, size); err != nil {
				return err
			}
		}
	default:
		*size += 8
	}
	return nil
}
