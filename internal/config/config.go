// Package config loads the service configuration from config.yaml and
// the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Adapter mode strings accepted for storage and execution backends.
const (
	StorageModePostgres = "postgres"
	StorageModeRemote   = "remote"

	ExecutionModeLocal  = "local"
	ExecutionModeRemote = "remote"
)

// Config holds the configuration for the application.
type Config struct {
	Environment string `mapstructure:"environment"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	Storage struct {
		Mode string `mapstructure:"mode"`
	} `mapstructure:"storage"`

	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`

	RemoteStore struct {
		URL    string `mapstructure:"url"`
		APIKey string `mapstructure:"api_key"`
	} `mapstructure:"remote_store"`

	Execution struct {
		Mode       string        `mapstructure:"mode"`
		LocalURL   string        `mapstructure:"local_url"`
		GatewayURL string        `mapstructure:"gateway_url"`
		APIKey     string        `mapstructure:"api_key"`
		Timeout    time.Duration `mapstructure:"timeout"`
	} `mapstructure:"execution"`

	Auth struct {
		Issuer        string `mapstructure:"issuer"`
		ClientID      string `mapstructure:"client_id"`
		ClientSecret  string `mapstructure:"client_secret"`
		RedirectURL   string `mapstructure:"redirect_url"`
		DevModeBypass bool   `mapstructure:"dev_mode_bypass"`
	} `mapstructure:"auth"`

	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// Load loads the configuration from a file and the environment. An
// empty path means the default search locations.
func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("environment", "dev")
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("storage.mode", StorageModePostgres)
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("execution.mode", ExecutionModeLocal)
	viper.SetDefault("execution.timeout", 10*time.Minute)

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine when everything comes from env.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Auth.Issuer = strings.TrimRight(strings.TrimSpace(cfg.Auth.Issuer), "/")

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Mode {
	case StorageModePostgres, StorageModeRemote:
	default:
		return fmt.Errorf("unknown storage mode %q", c.Storage.Mode)
	}
	switch c.Execution.Mode {
	case ExecutionModeLocal, ExecutionModeRemote:
	default:
		return fmt.Errorf("unknown execution mode %q", c.Execution.Mode)
	}
	if c.Execution.Timeout <= 0 {
		return fmt.Errorf("execution timeout must be positive, got %s", c.Execution.Timeout)
	}
	return nil
}

// IsDev reports whether the service runs in a development environment.
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.Environment, "dev")
}

// DBConnString builds the pgx connection string for the local database.
func (c *Config) DBConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode,
	)
}
