// Package bridge wires the decoder transport, framer, parser, and HTTP
// delivery pipeline together, and carries the ambient config/logging
// stack the core packages are built against: viper-backed, defaults set
// once, environment overrides via AutomaticEnv with "." replaced by "_".
package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// PostConfig is the post.* configuration surface (§6).
type PostConfig struct {
	Enabled                bool
	BaseURL                string
	Path                   string
	Method                 string
	TimeoutMs              int
	Retries                int
	RetryDelayMs           int
	RetryBackoffMultiplier float64
	QueueDrainMaxPerTick   int
	Headers                map[string]string
	QueuePath              string
	DrainIntervalMs        int
}

// ReconnectConfig is the decoder.reconnect.* configuration surface.
type ReconnectConfig struct {
	BaseDelayMs      int
	MaxDelayMs       int
	BackoffFactor    float64
	JitterRatio      float64
	ConnectTimeoutMs int
}

// DefaultsConfig is the defaults.* configuration surface.
type DefaultsConfig struct {
	Mode          string // "tcp" or "udp"
	TCPHost       string
	TCPPort       int
	UDPListenPort int
}

// LoggingConfig is the logging.* configuration surface.
type LoggingConfig struct {
	SuppressStatus bool
}

// MetricsConfig is ambient (not named by §6, carried regardless of scope
// the way metrics.enable/metrics.addr always are).
type MetricsConfig struct {
	Enable bool
	Addr   string
}

// Config is the bridge's full configuration, assembled from whatever
// externally-loaded object the caller wires in (§6: "Unknown keys are
// ignored" — ReadConfig only ever reads the keys below).
type Config struct {
	Post      PostConfig
	Reconnect ReconnectConfig
	Defaults  DefaultsConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

// ReadConfig loads configuration from a named "config" file searched
// across the usual paths, with every default set before reading so a
// missing key never surfaces as a zero value the caller has to
// special-case. A missing config file is not fatal — every field still
// has a usable default.
func ReadConfig() (*Config, error) {
	return ReadConfigWithPath("")
}

// ReadConfigWithPath is ReadConfig with an explicit config file path, as
// passed via cmd/p3-bridge's -c/--config flag. An empty path falls back
// to the usual search paths.
func ReadConfigWithPath(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/p3-bridge/")
		viper.AddConfigPath("$HOME/.p3-bridge")
		viper.AddConfigPath(".")
		viper.AddConfigPath("config/")
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(), nil
}

func setDefaults() {
	viper.SetDefault("post.enabled", true)
	viper.SetDefault("post.path", "")
	viper.SetDefault("post.method", "POST")
	viper.SetDefault("post.timeoutMs", 8000)
	viper.SetDefault("post.retries", 5)
	viper.SetDefault("post.retryDelayMs", 500)
	viper.SetDefault("post.retryBackoffMultiplier", 2.0)
	viper.SetDefault("post.queueDrainMaxPerTick", 5)
	viper.SetDefault("post.queuePath", "/var/lib/p3-bridge/queue.json")
	viper.SetDefault("post.drainIntervalMs", 30000)

	viper.SetDefault("decoder.reconnect.baseDelayMs", 1000)
	viper.SetDefault("decoder.reconnect.maxDelayMs", 30000)
	viper.SetDefault("decoder.reconnect.backoffFactor", 1.8)
	viper.SetDefault("decoder.reconnect.jitterRatio", 0.2)
	viper.SetDefault("decoder.reconnect.connectTimeoutMs", 8000)

	viper.SetDefault("defaults.mode", "tcp")
	viper.SetDefault("defaults.tcpHost", "127.0.0.1")
	viper.SetDefault("defaults.tcpPort", 5403)
	viper.SetDefault("defaults.udpListenPort", 5303)

	viper.SetDefault("logging.suppressStatus", false)

	viper.SetDefault("metrics.enable", true)
	viper.SetDefault("metrics.addr", ":9803")
}

func fromViper() *Config {
	return &Config{
		Post: PostConfig{
			Enabled:                viper.GetBool("post.enabled"),
			BaseURL:                viper.GetString("post.baseUrl"),
			Path:                   viper.GetString("post.path"),
			Method:                 viper.GetString("post.method"),
			TimeoutMs:              viper.GetInt("post.timeoutMs"),
			Retries:                viper.GetInt("post.retries"),
			RetryDelayMs:           viper.GetInt("post.retryDelayMs"),
			RetryBackoffMultiplier: viper.GetFloat64("post.retryBackoffMultiplier"),
			QueueDrainMaxPerTick:   viper.GetInt("post.queueDrainMaxPerTick"),
			Headers:                viper.GetStringMapString("post.headers"),
			QueuePath:              viper.GetString("post.queuePath"),
			DrainIntervalMs:        viper.GetInt("post.drainIntervalMs"),
		},
		Reconnect: ReconnectConfig{
			BaseDelayMs:      viper.GetInt("decoder.reconnect.baseDelayMs"),
			MaxDelayMs:       viper.GetInt("decoder.reconnect.maxDelayMs"),
			BackoffFactor:    viper.GetFloat64("decoder.reconnect.backoffFactor"),
			JitterRatio:      viper.GetFloat64("decoder.reconnect.jitterRatio"),
			ConnectTimeoutMs: viper.GetInt("decoder.reconnect.connectTimeoutMs"),
		},
		Defaults: DefaultsConfig{
			Mode:          viper.GetString("defaults.mode"),
			TCPHost:       viper.GetString("defaults.tcpHost"),
			TCPPort:       viper.GetInt("defaults.tcpPort"),
			UDPListenPort: viper.GetInt("defaults.udpListenPort"),
		},
		Logging: LoggingConfig{
			SuppressStatus: viper.GetBool("logging.suppressStatus"),
		},
		Metrics: MetricsConfig{
			Enable: viper.GetBool("metrics.enable"),
			Addr:   viper.GetString("metrics.addr"),
		},
	}
}

// Millis converts a millisecond config field into a time.Duration, used
// when wiring config into internal/retry and internal/delivery.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
