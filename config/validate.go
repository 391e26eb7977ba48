package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	minStoreSecretLen  = 16
	minRefreshInterval = time.Minute
	minPollInterval    = time.Second
)

func Validate(cfg *AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := validateHTTPURL("api.base_url", cfg.API.BaseURL); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Store.DBPath) == "" {
		return fmt.Errorf("store.db_path must be set")
	}
	if !cfg.IsDev() {
		secret := strings.TrimSpace(cfg.Store.Secret)
		if secret == "" {
			return fmt.Errorf("store.secret must be set outside APP_ENV=dev")
		}
		if len(secret) < minStoreSecretLen {
			return fmt.Errorf("store.secret must be at least %d characters", minStoreSecretLen)
		}
	}
	if cfg.Session.RefreshInterval < minRefreshInterval {
		return fmt.Errorf("session.refresh_interval must be at least %s", minRefreshInterval)
	}
	if cfg.Notifications.PollInterval < minPollInterval {
		return fmt.Errorf("notifications.poll_interval must be at least %s", minPollInterval)
	}
	if !strings.HasPrefix(cfg.Session.LoginPath, "/") {
		return fmt.Errorf("session.login_path must be an absolute path")
	}
	if cfg.Push.Enabled {
		if err := validateHTTPURL("push.service_url", cfg.Push.ServiceURL); err != nil {
			return err
		}
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s must be set", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}
