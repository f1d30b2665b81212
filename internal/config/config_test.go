package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.TokenTTL != time.Duration(defaultTokenTTLMinutes)*time.Minute {
		t.Fatalf("unexpected token ttl %s", cfg.TokenTTL)
	}
	if cfg.Realtime.PingInterval != defaultPingInterval || cfg.Realtime.SendBuffer != defaultSendBuffer {
		t.Fatalf("unexpected realtime defaults: %+v", cfg.Realtime)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	_, err := Load(NewViper())
	if err == nil || !strings.Contains(err.Error(), "auth.signing_secret") {
		t.Fatalf("expected signing secret error, got %v", err)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("CAMPUS_AUTH_SIGNING_SECRET", "env-secret")
	t.Setenv("CAMPUS_REALTIME_EVENTS_PER_SECOND", "0")
	t.Setenv("CAMPUS_CORS_ALLOWED_ORIGINS", "https://a.example.edu, https://b.example.edu")
	t.Setenv("CAMPUS_REALTIME_PING_INTERVAL", "10s")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.SigningSecret != "env-secret" {
		t.Fatalf("expected secret from env, got %q", cfg.SigningSecret)
	}
	if cfg.Realtime.EventsPerSecond != 0 {
		t.Fatalf("expected rate limit disabled, got %v", cfg.Realtime.EventsPerSecond)
	}
	if cfg.Realtime.PingInterval != 10*time.Second {
		t.Fatalf("unexpected ping interval %s", cfg.Realtime.PingInterval)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.edu" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsInvalidRealtimeSettings(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("realtime.send_buffer", 0)

	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected send buffer validation error")
	}
}

func TestLoadTokenSettingsIgnoresServerKeys(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("database.path", "")

	cfg, err := LoadTokenSettings(configViper)
	if err != nil {
		t.Fatalf("load token settings failed: %v", err)
	}
	if cfg.TokenIssuer != defaultIssuer || cfg.TokenAudience != defaultAudience {
		t.Fatalf("unexpected token settings: %+v", cfg)
	}
}
