package config

import "time"

// Config holds client configuration values.
type Config struct {
	APIBaseURL     string        `mapstructure:"api_base_url" yaml:"api_base_url"`
	SocketURL      string        `mapstructure:"socket_url" yaml:"socket_url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	ReconnectMinDelay    time.Duration `mapstructure:"reconnect_min_delay" yaml:"reconnect_min_delay"`
	ReconnectMaxDelay    time.Duration `mapstructure:"reconnect_max_delay" yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`

	CachePath string `mapstructure:"cache_path" yaml:"cache_path"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		APIBaseURL:           "http://localhost:8080",
		SocketURL:            "ws://localhost:8080/ws",
		ConnectTimeout:       10 * time.Second,
		RequestTimeout:       15 * time.Second,
		ReconnectMinDelay:    500 * time.Millisecond,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 0, // retry forever
		CachePath:            "", // cache disabled unless set
		LogLevel:             "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.SocketURL != "" {
		c.SocketURL = other.SocketURL
	}
	if other.ConnectTimeout != 0 {
		c.ConnectTimeout = other.ConnectTimeout
	}
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.ReconnectMinDelay != 0 {
		c.ReconnectMinDelay = other.ReconnectMinDelay
	}
	if other.ReconnectMaxDelay != 0 {
		c.ReconnectMaxDelay = other.ReconnectMaxDelay
	}
	if other.MaxReconnectAttempts != 0 {
		c.MaxReconnectAttempts = other.MaxReconnectAttempts
	}
	if other.CachePath != "" {
		c.CachePath = other.CachePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}
