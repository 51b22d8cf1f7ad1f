// Package config provides configuration for the WebNova socket client and
// the development relay.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/relay"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/session"
)

// EnvPrefix is prepended to every environment variable, e.g. WEBNOVA_LOG_LEVEL.
const EnvPrefix = "WEBNOVA"

// Config holds the client and relay configuration.
type Config struct {
	// Client settings
	ServerURL      string // Base URL of the host serving the AI socket
	Language       string // Language hint sent with chat requests
	AutoConnect    bool
	ChatTimeout    time.Duration
	ExecTimeout    time.Duration
	ReconnectDelay time.Duration
	PingInterval   time.Duration

	// Relay settings
	ListenAddr       string
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	MaxMessageSize   int64
	DatabaseURL      string
	SessionTTL       time.Duration
	CodeRunTimeout   time.Duration
	MaxCodeSize      int
	AllowedLanguages []string

	// Upstream model. The relay answers with canned replies when LLMBaseURL
	// is empty.
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Logging
	LogLevel string
}

var defaults = map[string]any{
	"server_url":          "http://localhost:8090",
	"language":            "ar",
	"auto_connect":        true,
	"chat_timeout_ms":     120000,
	"exec_timeout_ms":     60000,
	"reconnect_delay_ms":  3000,
	"ping_interval_ms":    30000,
	"listen_addr":         ":8090",
	"write_timeout_ms":    10000,
	"read_timeout_ms":     60000,
	"max_message_size":    65536,
	"database_url":        "file:webnova.db?cache=shared&mode=rwc",
	"session_ttl_ms":      1800000,
	"code_run_timeout_ms": 30000,
	"max_code_size":       16384,
	"allowed_languages":   "go,sh,bash",
	"llm_base_url":        "",
	"llm_api_key":         "",
	"llm_model":           "gpt-4o-mini",
	"llm_timeout_ms":      120000,
	"log_level":           "info",
}

// Load loads configuration from environment variables and, when path is not
// empty, from a config file. Environment variables win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	return &Config{
		ServerURL:        v.GetString("server_url"),
		Language:         v.GetString("language"),
		AutoConnect:      v.GetBool("auto_connect"),
		ChatTimeout:      millis(v, "chat_timeout_ms"),
		ExecTimeout:      millis(v, "exec_timeout_ms"),
		ReconnectDelay:   millis(v, "reconnect_delay_ms"),
		PingInterval:     millis(v, "ping_interval_ms"),
		ListenAddr:       v.GetString("listen_addr"),
		WriteTimeout:     millis(v, "write_timeout_ms"),
		ReadTimeout:      millis(v, "read_timeout_ms"),
		MaxMessageSize:   v.GetInt64("max_message_size"),
		DatabaseURL:      v.GetString("database_url"),
		SessionTTL:       millis(v, "session_ttl_ms"),
		CodeRunTimeout:   millis(v, "code_run_timeout_ms"),
		MaxCodeSize:      v.GetInt("max_code_size"),
		AllowedLanguages: splitList(v.GetString("allowed_languages")),
		LLMBaseURL:       v.GetString("llm_base_url"),
		LLMAPIKey:        v.GetString("llm_api_key"),
		LLMModel:         v.GetString("llm_model"),
		LLMTimeout:       millis(v, "llm_timeout_ms"),
		LogLevel:         v.GetString("log_level"),
	}, nil
}

// SessionOptions derives the socket session settings from the config.
func (c *Config) SessionOptions() (session.Options, error) {
	endpoint, err := session.EndpointURL(c.ServerURL)
	if err != nil {
		return session.Options{}, err
	}
	return session.Options{
		URL:            endpoint,
		AutoConnect:    c.AutoConnect,
		ChatTimeout:    c.ChatTimeout,
		ExecTimeout:    c.ExecTimeout,
		ReconnectDelay: c.ReconnectDelay,
		PingInterval:   c.PingInterval,
		CodeRunTimeout: c.CodeRunTimeout,
	}, nil
}

// RelayConfig derives the development relay settings from the config.
func (c *Config) RelayConfig() relay.Config {
	return relay.Config{
		WriteTimeout:     c.WriteTimeout,
		ReadTimeout:      c.ReadTimeout,
		PingInterval:     c.PingInterval,
		MaxMessageSize:   c.MaxMessageSize,
		SessionTTL:       c.SessionTTL,
		CodeRunTimeout:   c.CodeRunTimeout,
		MaxCodeSize:      c.MaxCodeSize,
		AllowedLanguages: c.AllowedLanguages,
	}
}

func millis(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt64(key)) * time.Millisecond
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
