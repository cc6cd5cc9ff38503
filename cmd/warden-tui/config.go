package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/warden/internal/logging"
	"github.com/tinytelemetry/warden/internal/model"
	"github.com/tinytelemetry/warden/internal/socketrpc"
)

// cliConfig holds only TUI-relevant configuration. It reads the same file
// and environment as the service.
type cliConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh-interval"`
	PageSize        int           `mapstructure:"page-size"`
	LoadTimeout     time.Duration `mapstructure:"load-timeout"`
	SocketPath      string        `mapstructure:"socket-path"`
	User            string        `mapstructure:"user"`
	AuthToken       string        `mapstructure:"auth-token"`
	LogLevel        string        `mapstructure:"log-level"`
	LogFile         string        `mapstructure:"tui-log-file"`
}

func loadCLIConfig(configPath string) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("WARDEN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("refresh-interval", model.DefaultRefreshInterval)
	// Zero fits the table to the terminal.
	v.SetDefault("page-size", 0)
	v.SetDefault("load-timeout", 30*time.Second)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("user", "")
	v.SetDefault("auth-token", "")
	v.SetDefault("log-level", "info")
	v.SetDefault("tui-log-file", logging.DefaultPath("warden-tui"))

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "warden", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if cfg.RefreshInterval <= 0 {
		return cfg, fmt.Errorf("invalid refresh-interval: %s", cfg.RefreshInterval)
	}
	if cfg.PageSize < 0 {
		return cfg, fmt.Errorf("invalid page-size: %d", cfg.PageSize)
	}
	return cfg, nil
}
