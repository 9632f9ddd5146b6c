// Package config assembles the runtime configuration: built-in defaults,
// an optional YAML file, and SYSLOG_* environment overrides, in that order.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/lmittmann/tint"
	"github.com/thisisjab/sluice/dedup"
	"github.com/thisisjab/sluice/receiver"
	"github.com/thisisjab/sluice/storage"
	"go.yaml.in/yaml/v3"
)

type Config struct {
	Logger        LoggerConfig  `yaml:"logger"`
	UDP           UDPConfig     `yaml:"udp"`
	TLS           TLSConfig     `yaml:"tls"`
	Dedup         dedup.Config  `yaml:"dedup"`
	Storage       StorageConfig `yaml:"storage"`
	Filter        FilterConfig  `yaml:"filter"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	Type  string `yaml:"type"`
}

type UDPConfig struct {
	Enabled  bool               `yaml:"enabled"`
	Receiver receiver.UDPConfig `yaml:",inline"`
}

type TLSConfig struct {
	Enabled  bool               `yaml:"enabled"`
	Receiver receiver.TLSConfig `yaml:",inline"`
}

type StorageConfig struct {
	Dir    string       `yaml:"dir"`
	Mirror MirrorConfig `yaml:"mirror"`
}

// MirrorConfig selects an optional secondary sink. The Config payload is
// backend-specific and remarshalled into the backend's own config type.
type MirrorConfig struct {
	Type          string        `yaml:"type"`
	BufferSize    uint          `yaml:"buffer_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Config        any           `yaml:"config"`
}

type FilterConfig struct {
	ScriptPath string `yaml:"script_path"`
}

// Default returns the documented defaults: both transports on, standard
// syslog ports, a ten-minute dedup window.
func Default() Config {
	return Config{
		Logger: LoggerConfig{Level: "info", Type: "text"},
		UDP: UDPConfig{
			Enabled:  true,
			Receiver: receiver.UDPConfig{Port: 514},
		},
		TLS: TLSConfig{
			Enabled: true,
			Receiver: receiver.TLSConfig{
				Port:     6514,
				CertFile: "cert.pem",
				KeyFile:  "key.pem",
			},
		},
		Dedup:         dedup.Config{Window: dedup.DefaultWindow, MaxEntries: dedup.DefaultMaxEntries},
		Storage:       StorageConfig{Dir: "logs"},
		ShutdownGrace: 2 * time.Second,
	}
}

// ApplyEnv overlays the SYSLOG_* environment variables. The environment
// always wins over the config file.
func (c *Config) ApplyEnv() error {
	var err error

	c.UDP.Receiver.Port = getenvInt("SYSLOG_UDP_PORT", c.UDP.Receiver.Port, &err)
	c.TLS.Receiver.Port = getenvInt("SYSLOG_TLS_PORT", c.TLS.Receiver.Port, &err)
	c.Storage.Dir = getenv("SYSLOG_LOG_DIR", c.Storage.Dir)
	c.TLS.Receiver.CertFile = getenv("SYSLOG_CERT_FILE", c.TLS.Receiver.CertFile)
	c.TLS.Receiver.KeyFile = getenv("SYSLOG_KEY_FILE", c.TLS.Receiver.KeyFile)
	c.UDP.Enabled = getenvBool("SYSLOG_ENABLE_UDP", c.UDP.Enabled, &err)
	c.TLS.Enabled = getenvBool("SYSLOG_ENABLE_TLS", c.TLS.Enabled, &err)
	c.Dedup.Window = getenvDuration("SYSLOG_DEDUP_WINDOW", c.Dedup.Window, &err)
	c.Dedup.MaxEntries = getenvInt("SYSLOG_DEDUP_MAX_ENTRIES", c.Dedup.MaxEntries, &err)
	c.TLS.Receiver.MaxConnections = getenvInt("SYSLOG_MAX_CONNECTIONS", c.TLS.Receiver.MaxConnections, &err)
	c.Filter.ScriptPath = getenv("SYSLOG_FILTER_SCRIPT", c.Filter.ScriptPath)
	c.Logger.Level = getenv("SYSLOG_LOG_LEVEL", c.Logger.Level)
	c.Logger.Type = getenv("SYSLOG_LOG_FORMAT", c.Logger.Type)

	return err
}

// BuildLogger creates the process logger from the logger section.
func (c Config) BuildLogger() (*slog.Logger, error) {
	var level slog.Level
	switch c.Logger.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", c.Logger.Level)
	}

	var handler slog.Handler
	w := os.Stdout
	switch c.Logger.Type {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case "text":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case "colored-text":
		handler = tint.NewHandler(w, &tint.Options{Level: level})
	default:
		return nil, fmt.Errorf("invalid log type: %s", c.Logger.Type)
	}

	return slog.New(handler), nil
}

// MirrorStorageConfig remarshals the backend-specific mirror payload into
// the ClickHouse config type. Only valid when Mirror.Type is "clickhouse".
func (c Config) MirrorStorageConfig() (storage.ClickHouseStorageConfig, error) {
	var chCfg storage.ClickHouseStorageConfig
	if err := remarshal(c.Storage.Mirror.Config, &chCfg); err != nil {
		return chCfg, fmt.Errorf("cannot parse clickhouse mirror config: %w", err)
	}
	return chCfg, nil
}

// remarshal converts a generic YAML value (like map[string]any) into a
// concrete struct. The output parameter must be a pointer to the target.
func remarshal(input any, output any) error {
	yamlBytes, err := yaml.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal to YAML: %w", err)
	}

	if err := yaml.Unmarshal(yamlBytes, output); err != nil {
		return fmt.Errorf("failed to unmarshal from YAML: %w", err)
	}

	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int, errOut *error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errOut = fmt.Errorf("%s: %w", key, err)
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool, errOut *error) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errOut = fmt.Errorf("%s: %w", key, err)
		return fallback
	}
	return b
}

// getenvDuration accepts either a Go duration string ("10m") or a plain
// number of seconds.
func getenvDuration(key string, fallback time.Duration, errOut *error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errOut = fmt.Errorf("%s: %w", key, err)
		return fallback
	}
	return d
}
