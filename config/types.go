package config

import "time"

type AppConfig struct {
	AppEnv        string              `yaml:"app_env" env:"MUSTODY_APP_ENV" env-default:"prod"`
	ListenAddr    string              `yaml:"listen_addr" env:"MUSTODY_LISTEN_ADDR" env-default:"127.0.0.1:8470"`
	LogLevel      string              `yaml:"log_level" env:"MUSTODY_LOG_LEVEL" env-default:"info"`
	API           APIConfig           `yaml:"api"`
	Store         StoreConfig         `yaml:"store"`
	Session       SessionConfig       `yaml:"session"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Push          PushConfig          `yaml:"push"`
	Observability ObservabilityConfig `yaml:"observability"`
}

func (c *AppConfig) IsDev() bool {
	if c == nil {
		return false
	}
	return c.AppEnv == "dev"
}

// APIConfig points at the remote Mustody REST backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"MUSTODY_API_BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"MUSTODY_API_TIMEOUT" env-default:"30s"`
}

type StoreConfig struct {
	DBPath string `yaml:"db_path" env:"MUSTODY_DB_PATH" env-default:"data/console.db"`
	Secret string `yaml:"secret" env:"MUSTODY_STORE_SECRET"`
}

type SessionConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"MUSTODY_SESSION_REFRESH_INTERVAL" env-default:"30m"`
	LoginPath       string        `yaml:"login_path" env:"MUSTODY_SESSION_LOGIN_PATH" env-default:"/login"`
}

type NotificationsConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"MUSTODY_NOTIFICATIONS_POLL_INTERVAL" env-default:"30s"`
}

type PushConfig struct {
	Enabled        bool   `yaml:"enabled" env:"MUSTODY_PUSH_ENABLED" env-default:"false"`
	ServiceURL     string `yaml:"service_url" env:"MUSTODY_PUSH_SERVICE_URL"`
	VAPIDPublicKey string `yaml:"vapid_public_key" env:"MUSTODY_PUSH_VAPID_PUBLIC_KEY"`
	DashboardPath  string `yaml:"dashboard_path" env:"MUSTODY_PUSH_DASHBOARD_PATH" env-default:"/dashboard"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled" env:"MUSTODY_METRICS_ENABLED" env-default:"false"`
	MetricsToken   string `yaml:"metrics_token" env:"MUSTODY_METRICS_TOKEN"`
}
