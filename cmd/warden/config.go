package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/warden/internal/duckdb"
	"github.com/tinytelemetry/warden/internal/logsource"
	"github.com/tinytelemetry/warden/internal/model"
	"github.com/tinytelemetry/warden/internal/socketrpc"
	"github.com/tinytelemetry/warden/internal/tcpserver"
)

const (
	defaultBindHost            = "127.0.0.1"
	defaultTCPPort             = 4000
	defaultAPIPort             = 3000
	defaultMuxBufferSize       = DefaultMuxBuffer
	defaultQueryTimeout        = 30 * time.Second
	defaultInsertBatchSize     = duckdb.DefaultBatchSize
	defaultInsertFlushInterval = duckdb.DefaultFlushInterval
	defaultInsertFlushQueue    = duckdb.DefaultFlushQueueSize
	defaultLogRetention        = 30 // days, 0 = disabled
	defaultCacheSize           = 256
	defaultBackupInterval      = 6 * time.Hour
	defaultBackupKeepLast      = 24
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Host                string        `mapstructure:"host"`
	DBPath              string        `mapstructure:"db-path"`
	QueryTimeout        time.Duration `mapstructure:"query-timeout"`
	APIEnabled          bool          `mapstructure:"api-enabled"`
	APIPort             int           `mapstructure:"api-port"`
	APIAddr             string        `mapstructure:"api-addr"`
	AuthToken           string        `mapstructure:"auth-token"`
	TCPEnabled          bool          `mapstructure:"tcp-enabled"`
	TCPPort             int           `mapstructure:"tcp-port"`
	TCPAddr             string        `mapstructure:"tcp-addr"`
	TCPMaxConns         int           `mapstructure:"tcp-max-conns"`
	TCPIdleTimeout      time.Duration `mapstructure:"tcp-idle-timeout"`
	KafkaBrokers        []string      `mapstructure:"kafka-brokers"`
	KafkaTopic          string        `mapstructure:"kafka-topic"`
	KafkaGroup          string        `mapstructure:"kafka-group"`
	KafkaVersion        string        `mapstructure:"kafka-version"`
	MuxBufferSize       int           `mapstructure:"mux-buffer-size"`
	GeoIPDB             string        `mapstructure:"geoip-db"`
	ConfidenceScale     string        `mapstructure:"confidence-scale"`
	RefreshInterval     time.Duration `mapstructure:"refresh-interval"`
	PageSize            int           `mapstructure:"page-size"`
	CacheSize           int           `mapstructure:"cache-size"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval"`
	InsertFlushQueue    int           `mapstructure:"insert-flush-queue-size"`
	InsertRetries       int           `mapstructure:"insert-retries"`
	LogRetention        int           `mapstructure:"log-retention"`
	LogLevel            string        `mapstructure:"log-level"`
	LogFile             string        `mapstructure:"log-file"`
	SocketPath          string        `mapstructure:"socket-path"`
	BackupEnabled       bool          `mapstructure:"backup-enabled"`
	BackupInterval      time.Duration `mapstructure:"backup-interval"`
	BackupDir           string        `mapstructure:"backup-dir"`
	BackupKeepLast      int           `mapstructure:"backup-keep-last"`
	ConfigPath          string        `mapstructure:"-"` // not from config file
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	dataDir := filepath.Join(home, ".local", "share", "warden")

	v := viper.New()
	v.SetEnvPrefix("WARDEN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("host", defaultBindHost)
	v.SetDefault("db-path", filepath.Join(dataDir, "warden.duckdb"))
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("auth-token", "")
	v.SetDefault("tcp-enabled", true)
	v.SetDefault("tcp-port", defaultTCPPort)
	v.SetDefault("tcp-max-conns", tcpserver.DefaultMaxConns)
	v.SetDefault("tcp-idle-timeout", 0)
	v.SetDefault("kafka-brokers", []string{})
	v.SetDefault("kafka-topic", "")
	v.SetDefault("kafka-group", logsource.DefaultKafkaGroup)
	v.SetDefault("kafka-version", "")
	v.SetDefault("mux-buffer-size", defaultMuxBufferSize)
	v.SetDefault("geoip-db", "")
	v.SetDefault("confidence-scale", "")
	v.SetDefault("refresh-interval", model.DefaultRefreshInterval)
	v.SetDefault("page-size", model.DefaultPageSize)
	v.SetDefault("cache-size", defaultCacheSize)
	v.SetDefault("insert-batch-size", defaultInsertBatchSize)
	v.SetDefault("insert-flush-interval", defaultInsertFlushInterval)
	v.SetDefault("insert-flush-queue-size", defaultInsertFlushQueue)
	v.SetDefault("insert-retries", 2)
	v.SetDefault("log-retention", defaultLogRetention)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-file", filepath.Join(home, ".local", "state", "warden", "warden.log"))
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-dir", filepath.Join(dataDir, "backups"))
	v.SetDefault("backup-keep-last", defaultBackupKeepLast)

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
	} else {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	// A comma-separated env var arrives as one element.
	if len(cfg.KafkaBrokers) == 1 && strings.Contains(cfg.KafkaBrokers[0], ",") {
		cfg.KafkaBrokers = strings.Split(cfg.KafkaBrokers[0], ",")
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	cfg.DBPath = expandHome(home, cfg.DBPath)
	cfg.GeoIPDB = expandHome(home, cfg.GeoIPDB)
	cfg.BackupDir = expandHome(home, cfg.BackupDir)
	cfg.LogFile = expandHome(home, cfg.LogFile)

	if cfg.TCPAddr == "" {
		cfg.TCPAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.TCPPort))
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	}
	return cfg, nil
}

func (cfg appConfig) validate() error {
	if cfg.TCPPort <= 0 || cfg.TCPPort > 65535 {
		return fmt.Errorf("invalid tcp-port: %d", cfg.TCPPort)
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	switch model.ConfidenceScale(cfg.ConfidenceScale) {
	case "", "auto", model.ScaleUnit, model.ScaleTen, model.ScalePercent:
	default:
		return fmt.Errorf("invalid confidence-scale: %q (want auto, unit, ten or percent)", cfg.ConfidenceScale)
	}
	if cfg.RefreshInterval <= 0 {
		return fmt.Errorf("invalid refresh-interval: %s", cfg.RefreshInterval)
	}
	if cfg.PageSize <= 0 {
		return fmt.Errorf("invalid page-size: %d", cfg.PageSize)
	}
	if cfg.LogRetention < 0 {
		return fmt.Errorf("invalid log-retention: %d", cfg.LogRetention)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return errors.New("kafka-topic is required when kafka-brokers is set")
	}
	if cfg.BackupEnabled {
		if cfg.BackupInterval <= 0 {
			return fmt.Errorf("invalid backup-interval: %s", cfg.BackupInterval)
		}
		if cfg.BackupKeepLast <= 0 {
			return fmt.Errorf("invalid backup-keep-last: %d", cfg.BackupKeepLast)
		}
	}
	return nil
}

// confidenceScale is the configured scale; "auto" and "" infer it per record.
func (cfg appConfig) confidenceScale() model.ConfidenceScale {
	if cfg.ConfidenceScale == "auto" {
		return ""
	}
	return model.ConfidenceScale(cfg.ConfidenceScale)
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
