// Package uuid tests for UUID generation and validation.
package uuid

import "testing"

// TestNew verifies generated ids are valid v4 UUIDs.
func TestNew(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New()
		if !IsValid(id) {
			t.Fatalf("New() = %q, not a valid UUID v4", id)
		}
		if seen[id] {
			t.Fatalf("New() produced duplicate %q", id)
		}
		seen[id] = true
	}
}

// TestNewTemp verifies temporary ids are prefixed and recognizable.
func TestNewTemp(t *testing.T) {
	id := NewTemp()
	if !IsTemp(id) {
		t.Errorf("IsTemp(%q) = false, want true", id)
	}
	if IsValid(id) {
		t.Errorf("temporary id %q should not pass server-id validation", id)
	}
	if IsTemp(New()) {
		t.Error("IsTemp should be false for a plain UUID")
	}
}

// TestIsValid verifies format checking.
func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"valid v4", "7c9e6679-7425-40de-944b-e07fc1f90ae7", true},
		{"empty", "", false},
		{"no dashes", "7c9e6679742540de944be07fc1f90ae7", false},
		{"wrong version", "7c9e6679-7425-10de-944b-e07fc1f90ae7", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.in); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
