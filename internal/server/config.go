// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the Circe service.
package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Tyrowin/circe/internal/transport"
)

// EnvPrefix prefixes every environment variable read by LoadConfig, e.g.
// CIRCE_PORT or CIRCE_RATE_LIMIT_BURST.
const EnvPrefix = "CIRCE"

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `mapstructure:"burst"`
	RefillInterval time.Duration `mapstructure:"refill_interval"`
}

// LogConfig selects the logger level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	IP              string          `mapstructure:"ip"`
	Port            int             `mapstructure:"port"`
	HTTPAddr        string          `mapstructure:"http_addr"`
	AllowedOrigins  []string        `mapstructure:"allowed_origins"`
	MaxMessageSize  int             `mapstructure:"max_message_size"`
	SendQueueSize   int             `mapstructure:"send_queue_size"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	Log             LogConfig       `mapstructure:"log"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		IP:       "127.0.0.1",
		Port:     1234,
		HTTPAddr: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: transport.DefaultMaxFrameSize,
		SendQueueSize:  256,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		ShutdownTimeout: 5 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Sanitize returns a copy of c with unset or non-positive values replaced by
// defaults. HTTPAddr and AllowedOrigins are left as given: an empty HTTPAddr
// disables the HTTP endpoint.
func (c Config) Sanitize() Config {
	def := DefaultConfig()

	c.IP = strings.TrimSpace(c.IP)
	if c.IP == "" {
		c.IP = def.IP
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = def.SendQueueSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return c
}

// Validate checks the listening address.
func (c Config) Validate() error {
	return errors.Join(transport.ValidateIP(c.IP), transport.ValidatePort(c.Port))
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"config":                     "config",
	"ip":                         "ip",
	"port":                       "port",
	"http-addr":                  "http_addr",
	"allowed-origins":            "allowed_origins",
	"max-message-size":           "max_message_size",
	"send-queue-size":            "send_queue_size",
	"rate-limit-burst":           "rate_limit.burst",
	"rate-limit-refill-interval": "rate_limit.refill_interval",
	"shutdown-timeout":           "shutdown_timeout",
	"log-level":                  "log.level",
	"log-format":                 "log.format",
}

// RegisterFlags adds the server flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	def := DefaultConfig()
	fs.String("config", "", "path to a yaml, toml or json config file")
	fs.String("ip", def.IP, "IP address to listen on")
	fs.Int("port", def.Port, "TCP port to listen on (1-65535)")
	fs.String("http-addr", def.HTTPAddr, "address of the HTTP endpoint serving /healthz, /metrics and /ws; empty disables it")
	fs.StringSlice("allowed-origins", def.AllowedOrigins, "origins allowed to open WebSocket sessions; * allows all")
	fs.Int("max-message-size", def.MaxMessageSize, "maximum inbound frame size in bytes")
	fs.Int("send-queue-size", def.SendQueueSize, "outbound frames buffered per session")
	fs.Int("rate-limit-burst", def.RateLimit.Burst, "frames a session may send in a burst")
	fs.Duration("rate-limit-refill-interval", def.RateLimit.RefillInterval, "time to refill a full burst")
	fs.Duration("shutdown-timeout", def.ShutdownTimeout, "time allowed for graceful shutdown")
	fs.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log-format", def.Log.Format, "log format (text or json)")
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("config", "")
	v.SetDefault("ip", def.IP)
	v.SetDefault("port", def.Port)
	v.SetDefault("http_addr", def.HTTPAddr)
	v.SetDefault("allowed_origins", def.AllowedOrigins)
	v.SetDefault("max_message_size", def.MaxMessageSize)
	v.SetDefault("send_queue_size", def.SendQueueSize)
	v.SetDefault("rate_limit.burst", def.RateLimit.Burst)
	v.SetDefault("rate_limit.refill_interval", def.RateLimit.RefillInterval)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
}

// LoadConfig resolves the configuration from, in order of precedence, flags
// set on fs, CIRCE_* environment variables, the file named by --config, and
// defaults. fs may be nil. The result is sanitized and validated.
func LoadConfig(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg = cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
