package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SETTINGS_PATH", "")
	t.Setenv("BATCH_DELAY_MS", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port mismatch: got %q want %q", cfg.Port, "8080")
	}
	if cfg.SettingsPath != "data/settings.json" {
		t.Fatalf("SettingsPath mismatch: got %q", cfg.SettingsPath)
	}
	if cfg.BatchDelay != 1500*time.Millisecond {
		t.Fatalf("BatchDelay mismatch: got %v", cfg.BatchDelay)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("AllowedOrigins mismatch: %#v", cfg.AllowedOrigins)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "1919")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("BATCH_DELAY_MS", "0")
	t.Setenv("DOCUMENT_WIDTH", "640")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000, http://127.0.0.1:3000")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "1919" {
		t.Fatalf("Port mismatch: got %q", cfg.Port)
	}
	if cfg.GeminiAPIKey != "test-key" {
		t.Fatalf("GeminiAPIKey mismatch: got %q", cfg.GeminiAPIKey)
	}
	if cfg.BatchDelay != 0 {
		t.Fatalf("BatchDelay mismatch: got %v", cfg.BatchDelay)
	}
	if cfg.DocumentWidth != 640 {
		t.Fatalf("DocumentWidth mismatch: got %d", cfg.DocumentWidth)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://127.0.0.1:3000" {
		t.Fatalf("AllowedOrigins mismatch: %#v", cfg.AllowedOrigins)
	}
}
