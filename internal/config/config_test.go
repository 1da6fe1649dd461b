package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("GEMINI_PRIMARY_MODEL", "")
	t.Setenv("ALLOW_REBOOKING", "")
	t.Setenv("TURN_TIMEOUT", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("TRANSCRIPT_BACKEND", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.GeminiPrimaryModel != "gemini-3-pro-preview" {
		t.Fatalf("expected default primary model, got %s", cfg.GeminiPrimaryModel)
	}
	if cfg.GeminiFallbackModel != "gemini-2.5-flash" {
		t.Fatalf("expected default fallback model, got %s", cfg.GeminiFallbackModel)
	}
	if cfg.AllowRebooking {
		t.Fatalf("expected rebooking disabled by default")
	}
	if cfg.TurnTimeout != 45*time.Second {
		t.Fatalf("expected default turn timeout, got %s", cfg.TurnTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("expected wildcard cors default, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.TranscriptBackend != "memory" {
		t.Fatalf("expected memory transcript backend, got %s", cfg.TranscriptBackend)
	}
	if cfg.AssistantName != "Puck" {
		t.Fatalf("expected default assistant name, got %s", cfg.AssistantName)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("ALLOW_REBOOKING", "true")
	t.Setenv("TURN_TIMEOUT", "10s")
	t.Setenv("RATE_LIMIT_RPS", "20")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("TRANSCRIPT_BACKEND", " Redis ")
	t.Setenv("DEFAULT_LANGUAGE", "ml-IN")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if !cfg.AllowRebooking {
		t.Fatalf("expected rebooking enabled")
	}
	if cfg.TurnTimeout != 10*time.Second {
		t.Fatalf("expected turn timeout override, got %s", cfg.TurnTimeout)
	}
	if cfg.RateLimitRPS != 20 {
		t.Fatalf("expected rps override, got %d", cfg.RateLimitRPS)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.TranscriptBackend != "redis" {
		t.Fatalf("expected normalized backend, got %q", cfg.TranscriptBackend)
	}
	if cfg.DefaultLanguage != "ml-IN" {
		t.Fatalf("expected language override, got %s", cfg.DefaultLanguage)
	}
}

func TestLoadIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "lots")
	t.Setenv("PERSIST_TIMEOUT", "soon")
	cfg := Load()
	if cfg.RateLimitBurst != 10 {
		t.Fatalf("expected burst default, got %d", cfg.RateLimitBurst)
	}
	if cfg.PersistTimeout != 10*time.Second {
		t.Fatalf("expected persist timeout default, got %s", cfg.PersistTimeout)
	}
}
