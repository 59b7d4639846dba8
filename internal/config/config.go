// Package config provides configuration handling for the exporter.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the exporter configuration, assembled from flags and
// FRITZ_* environment variables.
type Config struct {
	Address     string
	Username    string
	Password    string
	MetricsFile string
	Listen      string
	LogLevel    string
	LogFormat   string
	CallTimeout time.Duration
	ShowVersion bool
}

// Load parses command line arguments and environment variables. Flags
// win over environment variables; unset values keep their defaults.
// Address, Username and Password may legitimately come back empty, the
// caller is expected to prompt for them interactively.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("fritzbox-exporter", pflag.ContinueOnError)

	fs.String("address", "", "FRITZ!Box address (host or host:port)")
	fs.String("username", "", "FRITZ!Box username")
	fs.String("password", "", "FRITZ!Box password")
	fs.String("metrics-file", "metrics.yml", "Path to the metric definitions file")
	fs.String("listen", ":8000", "Listen address for the metrics endpoint")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-format", "text", "Log format (text, json)")
	fs.Duration("call-timeout", 10*time.Second, "Timeout for a single TR-064 call")
	fs.Bool("version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("FRITZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("failed to bind flags: %w", err)
	}

	return Config{
		Address:     v.GetString("address"),
		Username:    v.GetString("username"),
		Password:    v.GetString("password"),
		MetricsFile: v.GetString("metrics-file"),
		Listen:      v.GetString("listen"),
		LogLevel:    v.GetString("log-level"),
		LogFormat:   v.GetString("log-format"),
		CallTimeout: v.GetDuration("call-timeout"),
		ShowVersion: v.GetBool("version"),
	}, nil
}

// Validate checks that the configuration is complete and consistent.
// It runs after interactive prompting, so empty credentials are an
// error here.
func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address must be set")
	}
	if c.Username == "" {
		return fmt.Errorf("username must be set")
	}
	if c.Password == "" {
		return fmt.Errorf("password must be set")
	}
	if c.MetricsFile == "" {
		return fmt.Errorf("metrics file must be set")
	}
	if c.Listen == "" {
		return fmt.Errorf("listen address must be set")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be positive, got %s", c.CallTimeout)
	}
	return nil
}
