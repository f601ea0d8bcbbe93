// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// DefaultChatAPIURL is used when CHAT_API_URL is unset or empty.
const DefaultChatAPIURL = "https://will-api-45901355656.us-south1.run.app/query"

var querySuffix = regexp.MustCompile(`/query/?$`)

// Config holds all application configuration.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	FrontendURL string `envconfig:"FRONTEND_URL"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// ChatAPIURL is the upstream chat endpoint after quote stripping and defaulting.
	ChatAPIURL string `envconfig:"CHAT_API_URL"`
	// FeedbackAPIURL is the resolved upstream feedback endpoint. Empty means
	// feedback is not configured.
	FeedbackAPIURL string `envconfig:"FEEDBACK_API_URL"`

	UpstreamTimeout    time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"30s"`
	MaxRequestBodySize int64         `envconfig:"MAX_REQUEST_BODY_SIZE" default:"1048576"`
	AllowedOrigins     []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// normalize resolves the upstream URLs once so request handlers never read
// the environment.
func (c *Config) normalize() {
	chat := StripQuotes(c.ChatAPIURL)
	feedback := StripQuotes(c.FeedbackAPIURL)
	if feedback == "" {
		// Only an explicitly configured chat URL is used for derivation.
		feedback = DeriveFeedbackURL(chat)
	}
	if chat == "" {
		chat = DefaultChatAPIURL
	}
	c.ChatAPIURL = chat
	c.FeedbackAPIURL = feedback
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if _, err := url.ParseRequestURI(c.ChatAPIURL); err != nil {
		return fmt.Errorf("CHAT_API_URL is not a valid URL: %w", err)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be > 0")
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0")
	}
	return nil
}

// FeedbackConfigured reports whether a feedback endpoint could be resolved.
func (c *Config) FeedbackConfigured() bool {
	return c.FeedbackAPIURL != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StripQuotes removes one leading and one trailing double quote, which
// deployment dashboards tend to leave around pasted URLs.
func StripQuotes(v string) string {
	v = strings.TrimPrefix(v, `"`)
	return strings.TrimSuffix(v, `"`)
}

// DeriveFeedbackURL swaps a trailing /query path segment of chatURL for
// /feedback, keeping scheme, host, and the rest of the URL. It returns ""
// when chatURL is not absolute or has no /query segment to rewrite.
func DeriveFeedbackURL(chatURL string) string {
	if chatURL == "" {
		return ""
	}
	u, err := url.Parse(chatURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	if !querySuffix.MatchString(u.Path) {
		return ""
	}
	u.Path = querySuffix.ReplaceAllString(u.Path, "/feedback")
	u.RawPath = ""
	return u.String()
}
