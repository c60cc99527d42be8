package utils

import (
	"strings"
	"testing"
)

func TestValidateParams(t *testing.T) {
	if err := ValidateParams(nil); err != nil {
		t.Fatalf("nil params rejected: %v", err)
	}
	if err := ValidateParams(map[string]interface{}{
		"prompt": "a fox",
		"seed":   float64(7),
		"nested": map[string]interface{}{"k": []interface{}{"a", "b"}},
	}); err != nil {
		t.Fatalf("normal params rejected: %v", err)
	}

	huge := map[string]interface{}{"prompt": strings.Repeat("x", MaxParamsSize+1)}
	if err := ValidateParams(huge); err == nil {
		t.Fatal("oversized params accepted")
	}

	deep := map[string]interface{}{}
	leaf := deep
	for i := 0; i <= MaxParamDepth; i++ {
		next := map[string]interface{}{}
		leaf["d"] = next
		leaf = next
	}
	if err := ValidateParams(deep); err == nil {
		t.Fatal("overly nested params accepted")
	}

	if err := ValidateParams(map[string]interface{}{"s": string([]byte{0xff, 0xfe})}); err == nil {
		t.Fatal("invalid UTF-8 accepted")
	}
}

func TestValidateText(t *testing.T) {
	if err := ValidateText("draw a fox"); err != nil {
		t.Fatalf("normal text rejected: %v", err)
	}
	if err := ValidateText(strings.Repeat("y", MaxTextSize+1)); err == nil {
		t.Fatal("oversized text accepted")
	}
}
