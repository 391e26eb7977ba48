package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	defaultConfigPath = "config/app.yaml"
	envPrefix         = "MUSTODY_"
)

func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	cfgPath := resolveConfigPath()
	if st, err := os.Stat(cfgPath); err == nil && !st.IsDir() {
		if err := cleanenv.ReadConfig(cfgPath, cfg); err != nil {
			return nil, err
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	applyEnvAliases(cfg)
	normalizeConfig(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvAliases(cfg *AppConfig) {
	if cfg == nil {
		return
	}
	if v := getEnv("ENV", "APP_ENV"); v != "" {
		cfg.AppEnv = strings.TrimSpace(v)
	}
	if v := getEnv("API_BASE_URL"); v != "" {
		cfg.API.BaseURL = strings.TrimSpace(v)
	}
	if v := getEnv("PORT", envPrefix+"PORT"); v != "" {
		cfg.ListenAddr = listenAddrWithPort(cfg.ListenAddr, v)
	}
	if v := getEnv("DATA_PATH", envPrefix+"DATA_PATH"); v != "" {
		cfg.Store.DBPath = filepathJoin(strings.TrimSpace(v), "console.db")
	}
	if v := getEnv("STORE_SECRET"); v != "" {
		cfg.Store.Secret = strings.TrimSpace(v)
	}
	if v := getEnv("POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.Notifications.PollInterval = time.Duration(n) * time.Second
		}
	}
}

func normalizeConfig(cfg *AppConfig) {
	if cfg == nil {
		return
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.ListenAddr = strings.TrimSpace(cfg.ListenAddr)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	cfg.Store.DBPath = strings.TrimSpace(cfg.Store.DBPath)
	cfg.Store.Secret = strings.TrimSpace(cfg.Store.Secret)
	cfg.Session.LoginPath = strings.TrimSpace(cfg.Session.LoginPath)
	cfg.Push.ServiceURL = strings.TrimRight(strings.TrimSpace(cfg.Push.ServiceURL), "/")
	cfg.Push.VAPIDPublicKey = strings.TrimSpace(cfg.Push.VAPIDPublicKey)
	cfg.Push.DashboardPath = strings.TrimSpace(cfg.Push.DashboardPath)
	cfg.Observability.MetricsToken = strings.TrimSpace(cfg.Observability.MetricsToken)
	if cfg.AppEnv == "" {
		cfg.AppEnv = "prod"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = 30 * time.Second
	}
	if cfg.Session.RefreshInterval <= 0 {
		cfg.Session.RefreshInterval = 30 * time.Minute
	}
	if cfg.Session.LoginPath == "" {
		cfg.Session.LoginPath = "/login"
	}
	if cfg.Notifications.PollInterval <= 0 {
		cfg.Notifications.PollInterval = 30 * time.Second
	}
	if cfg.Push.DashboardPath == "" {
		cfg.Push.DashboardPath = "/dashboard"
	}
}

func getEnv(keys ...string) string {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func resolveConfigPath() string {
	if v := getEnv("APP_CONFIG", envPrefix+"APP_CONFIG"); v != "" {
		return strings.TrimSpace(v)
	}
	return defaultConfigPath
}

func listenAddrWithPort(currentAddr, portRaw string) string {
	port := strings.TrimSpace(portRaw)
	if port == "" {
		return currentAddr
	}
	if _, err := strconv.Atoi(port); err != nil {
		return currentAddr
	}
	host := "127.0.0.1"
	parts := strings.Split(strings.TrimSpace(currentAddr), ":")
	if len(parts) > 1 {
		host = strings.Join(parts[:len(parts)-1], ":")
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return host + ":" + port
}

func filepathJoin(base, leaf string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return leaf
	}
	base = strings.TrimRight(base, "/\\")
	return base + string(os.PathSeparator) + leaf
}
