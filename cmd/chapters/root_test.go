package main

import (
	"testing"

	"video-chapters/internal/domain"
)

// TestRootCommandFlagDefaults checks the documented flag defaults.
func TestRootCommandFlagDefaults(t *testing.T) {
	cmd := newRootCommand()

	if got := cmd.Flags().Lookup("language").DefValue; got != "" {
		t.Fatalf("language default = %q, want empty (automatic selection)", got)
	}
	if got := cmd.Flags().Lookup("model").DefValue; got != domain.DefaultModel {
		t.Fatalf("model default = %q, want %q", got, domain.DefaultModel)
	}
	if got := cmd.Flags().Lookup("output-dir").DefValue; got != "" {
		t.Fatalf("output-dir default = %q, want empty", got)
	}
}

// TestResolveAPIKeyPrefersFlagOverEnvironment checks resolution order.
func TestResolveAPIKeyPrefersFlagOverEnvironment(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")

	key, err := resolveAPIKey("flag-key")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if key != "flag-key" {
		t.Fatalf("key = %q, want flag-key", key)
	}
}

// TestResolveAPIKeyFallsBackToEnvironment checks the env fallback.
func TestResolveAPIKeyFallsBackToEnvironment(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")

	key, err := resolveAPIKey("   ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if key != "env-key" {
		t.Fatalf("key = %q, want env-key", key)
	}
}
