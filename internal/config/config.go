package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "FIELDSYNC"
	defaultAPIBaseURL    = "http://localhost:8080/api"
	defaultDatabasePath  = "fieldsync.db"
	defaultLogLevel      = "info"
	defaultSyncInterval  = 30 * time.Second
	defaultProbeURL      = ""
	defaultProbeInterval = 5 * time.Second
)

// AppConfig captures runtime configuration for the field client.
type AppConfig struct {
	APIBaseURL    string
	AuthToken     string
	TokenPath     string
	DatabasePath  string
	LogLevel      string
	SyncInterval  time.Duration
	ProbeURL      string
	ProbeInterval time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("api.base_url", defaultAPIBaseURL)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("sync.interval", defaultSyncInterval)
	configViper.SetDefault("connectivity.probe_url", defaultProbeURL)
	configViper.SetDefault("connectivity.probe_interval", defaultProbeInterval)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		APIBaseURL:    configViper.GetString("api.base_url"),
		AuthToken:     configViper.GetString("api.auth_token"),
		TokenPath:     configViper.GetString("api.token_path"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		SyncInterval:  configViper.GetDuration("sync.interval"),
		ProbeURL:      configViper.GetString("connectivity.probe_url"),
		ProbeInterval: configViper.GetDuration("connectivity.probe_interval"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	return nil
}
