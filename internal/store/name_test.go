package store

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "simple", input: "notes", wantErr: false},
		{name: "with hyphen", input: "team-notes", wantErr: false},
		{name: "numeric", input: "db1", wantErr: false},
		{name: "single char", input: "a", wantErr: false},
		{name: "max length", input: strings.Repeat("a", 64), wantErr: false},
		{name: "empty", input: "", wantErr: true},
		{name: "uppercase", input: "Notes", wantErr: true},
		{name: "leading hyphen", input: "-notes", wantErr: true},
		{name: "trailing hyphen", input: "notes-", wantErr: true},
		{name: "consecutive hyphens", input: "team--notes", wantErr: true},
		{name: "slash", input: "org/notes", wantErr: true},
		{name: "space", input: "my notes", wantErr: true},
		{name: "underscore", input: "my_notes", wantErr: true},
		{name: "too long", input: strings.Repeat("a", 65), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateName(%q) = nil, want error", tt.input)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateName(%q) = %v, want nil", tt.input, err)
			}
			if tt.wantErr && err != nil && !errors.Is(err, ErrInvalidName) {
				t.Errorf("ValidateName(%q) = %v, want ErrInvalidName", tt.input, err)
			}
		})
	}
}
