package id

import (
	"strings"
	"testing"
)

func TestGenerateUnique(t *testing.T) {
	g := NewGenerator()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		s := g.GenerateString()
		if seen[s] {
			t.Fatalf("duplicate ULID generated: %s", s)
		}
		seen[s] = true
	}
}

func TestPrefixedIDs(t *testing.T) {
	cases := []struct {
		id     string
		prefix string
	}{
		{NewRequestID().String(), "req_"},
		{NewSessionID().String(), "sess_"},
		{NewItemID().String(), "item_"},
		{NewUserID().String(), "user_"},
	}

	for _, c := range cases {
		if !strings.HasPrefix(c.id, c.prefix) {
			t.Errorf("expected prefix %q, got %q", c.prefix, c.id)
		}
		raw := strings.TrimPrefix(c.id, c.prefix)
		if !IsValid(raw) {
			t.Errorf("expected valid ULID after prefix, got %q", raw)
		}
	}
}

func TestTimestamp(t *testing.T) {
	raw := NewGenerator().GenerateString()

	ts, err := Timestamp(raw)
	if err != nil {
		t.Fatalf("Timestamp failed: %v", err)
	}
	if ts.IsZero() {
		t.Error("expected non-zero timestamp")
	}
}
