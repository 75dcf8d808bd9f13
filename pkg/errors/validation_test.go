package errors

import (
	"strings"
	"testing"
)

func TestValidateNodeID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "llm-1", false},
		{"valid with spaces", "my node", false},
		{"valid unicode", "nœud", false},
		{"valid long", strings.Repeat("a", 4096), false},

		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNodeID("nodes[0].id", tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNodeID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidPipeline) {
				t.Errorf("ValidateNodeID(%q) code = %v, want %v", tt.input, GetCode(err), ErrCodeInvalidPipeline)
			}
		})
	}
}

func TestValidateNodeIDMessage(t *testing.T) {
	err := ValidateNodeID("nodes[2].id", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(UserMessage(err), "nodes[2].id") {
		t.Errorf("message should name the field, got %q", UserMessage(err))
	}
}

func TestValidateCount(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		limit   int
		wantErr bool
	}{
		{"under limit", 5, 10, false},
		{"at limit", 10, 10, false},
		{"over limit", 11, 10, true},
		{"zero limit disables", 1_000_000, 0, false},
		{"negative limit disables", 3, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCount("nodes", tt.n, tt.limit)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCount(%d, %d) error = %v, wantErr %v", tt.n, tt.limit, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodePipelineTooLarge) {
				t.Errorf("ValidateCount() code = %v, want %v", GetCode(err), ErrCodePipelineTooLarge)
			}
		})
	}
}
