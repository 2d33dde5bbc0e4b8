package config

import "time"

// DefaultNamingPattern is the filename template used when none is configured
const DefaultNamingPattern = "{method}_{url}_{timestamp}"

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:          ModeOff,
		RecordingsDir: "./recordings",
		NamingPattern: DefaultNamingPattern,
		Matching: MatchingConfig{
			IncludeQuery:   true,
			IncludeHeaders: false,
			IncludeBody:    false,
			CaseSensitive:  false,
		},
		Filters: FiltersConfig{
			Methods:         []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			URLPatterns:     []string{"*"},
			ExcludePatterns: []string{},
		},
		Server: ServerConfig{
			Port:          8080,
			Host:          "0.0.0.0",
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			MaxConnsPerIP: 100,
			Concurrency:   256000,
		},
		Upstream: UpstreamConfig{
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			Output:    "stdout",
			AddCaller: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Admin: AdminConfig{
			Enabled:   false,
			Prefix:    "/__cassette",
			JWTIssuer: "cassette",
		},
		Middleware: MiddlewareConfig{
			Timeout: TimeoutConfig{
				Duration: 30 * time.Second,
			},
			Recovery: RecoveryConfig{
				Enabled:  true,
				LogStack: true,
			},
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				Burst:             200,
			},
			RequestID: true,
		},
		HotReload: HotReloadConfig{
			DebounceDelay: 500 * time.Millisecond,
		},
	}
}
