package shakes

import (
	"regexp"
	"testing"
)

var sessionNamePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}Z-[a-z0-9]{3}$`)

func TestNewSessionNameMatchesFormat(t *testing.T) {
	name := NewSessionName()
	if !sessionNamePattern.MatchString(name) {
		t.Fatalf("session name %q does not match expected format", name)
	}
}

func TestNewSessionNameIsNotConstant(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		seen[NewSessionName()] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected varied suffixes across calls, got %d distinct names", len(seen))
	}
}
