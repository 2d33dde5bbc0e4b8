package config

import (
	"time"
)

// Mode is the operating state of the cassette middleware
type Mode string

const (
	ModeOff    Mode = "off"
	ModeRecord Mode = "record"
	ModeReplay Mode = "replay"
)

// IsValid returns true if the mode is a recognized value
func (m Mode) IsValid() bool {
	switch m {
	case ModeOff, ModeRecord, ModeReplay:
		return true
	default:
		return false
	}
}

// Config represents the complete configuration structure
type Config struct {
	Mode          Mode             `mapstructure:"mode" yaml:"mode"`
	RecordingsDir string           `mapstructure:"recordings_dir" yaml:"recordings_dir"`
	NamingPattern string           `mapstructure:"naming_pattern" yaml:"naming_pattern"`
	Matching      MatchingConfig   `mapstructure:"matching" yaml:"matching"`
	Filters       FiltersConfig    `mapstructure:"filters" yaml:"filters"`
	Store         StoreConfig      `mapstructure:"store" yaml:"store"`
	Server        ServerConfig     `mapstructure:"server" yaml:"server"`
	Upstream      UpstreamConfig   `mapstructure:"upstream" yaml:"upstream"`
	Logging       LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Metrics       MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Admin         AdminConfig      `mapstructure:"admin" yaml:"admin"`
	Middleware    MiddlewareConfig `mapstructure:"middleware" yaml:"middleware"`
	HotReload     HotReloadConfig  `mapstructure:"hotreload" yaml:"hotreload"`
}

// MatchingConfig selects which parts of a request feed the request key
type MatchingConfig struct {
	IncludeQuery   bool `mapstructure:"include_query" yaml:"include_query"`
	IncludeHeaders bool `mapstructure:"include_headers" yaml:"include_headers"`
	IncludeBody    bool `mapstructure:"include_body" yaml:"include_body"`
	CaseSensitive  bool `mapstructure:"case_sensitive" yaml:"case_sensitive"`
}

// FiltersConfig decides which requests are recorded or replayed
type FiltersConfig struct {
	Methods         []string `mapstructure:"methods" yaml:"methods"`
	URLPatterns     []string `mapstructure:"url_patterns" yaml:"url_patterns"`
	ExcludePatterns []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`
}

// StoreConfig holds optional cassette store extensions
type StoreConfig struct {
	Index          bool `mapstructure:"index" yaml:"index"`                     // In-memory requestKey index
	PersistCounter bool `mapstructure:"persist_counter" yaml:"persist_counter"` // Keep the filename counter across restarts
	Watch          bool `mapstructure:"watch" yaml:"watch"`                     // Invalidate the index on external edits
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port" yaml:"port"`
	Host          string        `mapstructure:"host" yaml:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxConnsPerIP int           `mapstructure:"max_conns_per_ip" yaml:"max_conns_per_ip"`
	Concurrency   int           `mapstructure:"concurrency" yaml:"concurrency"`
}

// UpstreamConfig configures the pass-through handler behind the middleware
type UpstreamConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `mapstructure:"level" yaml:"level"`
	Format    string `mapstructure:"format" yaml:"format"` // json or console
	Output    string `mapstructure:"output" yaml:"output"` // stdout, stderr, or file path
	AddCaller bool   `mapstructure:"add_caller" yaml:"add_caller"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// AdminConfig holds configuration for the recordings admin endpoints
type AdminConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"` // Empty disables authentication
	JWTIssuer string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
}

// MiddlewareConfig holds middleware configuration
type MiddlewareConfig struct {
	CORS      CORSConfig      `mapstructure:"cors" yaml:"cors"`
	Timeout   TimeoutConfig   `mapstructure:"timeout" yaml:"timeout"`
	Recovery  RecoveryConfig  `mapstructure:"recovery" yaml:"recovery"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	RequestID bool            `mapstructure:"request_id" yaml:"request_id"`
}

// CORSConfig holds CORS middleware configuration
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled" yaml:"enabled"`
	AllowOrigins     []string `mapstructure:"allow_origins" yaml:"allow_origins"`
	AllowMethods     []string `mapstructure:"allow_methods" yaml:"allow_methods"`
	AllowHeaders     []string `mapstructure:"allow_headers" yaml:"allow_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" yaml:"max_age"`
}

// TimeoutConfig holds timeout middleware configuration
type TimeoutConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Duration time.Duration `mapstructure:"duration" yaml:"duration"`
}

// RecoveryConfig holds recovery middleware configuration
type RecoveryConfig struct {
	Enabled  bool `mapstructure:"enabled" yaml:"enabled"`
	LogStack bool `mapstructure:"log_stack" yaml:"log_stack"`
}

// RateLimitConfig holds the global request rate limit
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// HotReloadConfig holds hot reload configuration
type HotReloadConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	DebounceDelay time.Duration `mapstructure:"debounce_delay" yaml:"debounce_delay"`
}
