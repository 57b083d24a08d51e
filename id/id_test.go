package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xraph/slackrelay/id"
)

func TestNewCarriesPrefix(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() id.ID
		prefix id.Prefix
	}{
		{"request", id.NewRequestID, id.PrefixRequest},
		{"forward", id.NewForwardID, id.PrefixForward},
		{"dlq", id.NewDLQID, id.PrefixDLQ},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.gen()
			if got.Prefix() != tt.prefix {
				t.Fatalf("prefix: got %q, want %q", got.Prefix(), tt.prefix)
			}
			if !strings.HasPrefix(got.String(), string(tt.prefix)+"_") {
				t.Fatalf("string %q missing prefix", got.String())
			}
		})
	}
}

func TestParseDLQIDRejectsOtherPrefix(t *testing.T) {
	fwd := id.NewForwardID()
	if _, err := id.ParseDLQID(fwd.String()); err == nil {
		t.Fatal("expected prefix mismatch error")
	}

	dlqID := id.NewDLQID()
	parsed, err := id.ParseDLQID(dlqID.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != dlqID {
		t.Fatalf("round trip: got %v, want %v", parsed, dlqID)
	}
}

func TestNilID(t *testing.T) {
	if !id.Nil.IsNil() {
		t.Fatal("Nil should report IsNil")
	}
	if id.Nil.String() != "" {
		t.Fatalf("Nil string: got %q", id.Nil.String())
	}

	var decoded struct {
		ID id.ID `json:"id"`
	}
	if err := json.Unmarshal([]byte(`{"id":""}`), &decoded); err != nil {
		t.Fatal(err)
	}
	if !decoded.ID.IsNil() {
		t.Fatal("empty string should decode to Nil")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Fatal("expected error for empty string")
	}
}
