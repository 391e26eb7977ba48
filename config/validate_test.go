package config

import (
	"testing"
	"time"
)

func validConfig() *AppConfig {
	return &AppConfig{
		AppEnv: "prod",
		API:    APIConfig{BaseURL: "https://api.mustody.test/v1", Timeout: 10 * time.Second},
		Store:  StoreConfig{DBPath: "data/console.db", Secret: "0123456789abcdef0123"},
		Session: SessionConfig{
			RefreshInterval: 30 * time.Minute,
			LoginPath:       "/login",
		},
		Notifications: NotificationsConfig{PollInterval: 30 * time.Second},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsMissingBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.API.BaseURL = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for empty api.base_url")
	}
	cfg.API.BaseURL = "ftp://api.mustody.test"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for non-http scheme")
	}
}

func TestValidateRejectsShortSecretInProd(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Secret = "short"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for short store secret")
	}
	cfg.Store.Secret = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for empty store secret")
	}
}

func TestValidateAllowsDevWithoutSecret(t *testing.T) {
	cfg := validConfig()
	cfg.AppEnv = "dev"
	cfg.Store.Secret = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("dev config should validate: %v", err)
	}
}

func TestValidateIntervals(t *testing.T) {
	cfg := validConfig()
	cfg.Session.RefreshInterval = 10 * time.Second
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for refresh interval below one minute")
	}
	cfg = validConfig()
	cfg.Notifications.PollInterval = 100 * time.Millisecond
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for poll interval below one second")
	}
}

func TestValidatePushRequiresServiceURL(t *testing.T) {
	cfg := validConfig()
	cfg.Push.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for push without service url")
	}
	cfg.Push.ServiceURL = "https://push.mustody.test"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
