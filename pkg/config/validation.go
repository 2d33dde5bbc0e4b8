package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(ve[0].Error())
	sb.WriteString(fmt.Sprintf(" (and %d more errors)", len(ve)-1))
	return sb.String()
}

// Validate validates the complete configuration. URL patterns are checked
// when the filter engine compiles them.
func Validate(cfg *Config) error {
	var errors ValidationErrors

	errors = append(errors, validateCassette(cfg)...)
	errors = append(errors, validateServer(&cfg.Server)...)
	errors = append(errors, validateUpstream(&cfg.Upstream)...)
	errors = append(errors, validateLogging(&cfg.Logging)...)
	errors = append(errors, validateMetrics(&cfg.Metrics)...)
	errors = append(errors, validateAdmin(&cfg.Admin)...)
	errors = append(errors, validateMiddleware(&cfg.Middleware)...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func validateCassette(cfg *Config) ValidationErrors {
	var errors ValidationErrors

	if !cfg.Mode.IsValid() {
		errors = append(errors, ValidationError{
			Field:   "mode",
			Value:   cfg.Mode,
			Message: "must be one of: off, record, replay",
		})
	}

	if cfg.RecordingsDir == "" {
		errors = append(errors, ValidationError{
			Field:   "recordings_dir",
			Value:   cfg.RecordingsDir,
			Message: "cannot be empty",
		})
	}

	if strings.TrimSpace(cfg.NamingPattern) == "" {
		errors = append(errors, ValidationError{
			Field:   "naming_pattern",
			Value:   cfg.NamingPattern,
			Message: "cannot be empty",
		})
	} else if strings.ContainsAny(cfg.NamingPattern, `/\`) {
		errors = append(errors, ValidationError{
			Field:   "naming_pattern",
			Value:   cfg.NamingPattern,
			Message: "must not contain path separators",
		})
	}

	for i, method := range cfg.Filters.Methods {
		if strings.TrimSpace(method) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("filters.methods[%d]", i),
				Value:   method,
				Message: "cannot be empty",
			})
		}
	}

	return errors
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errors ValidationErrors

	if cfg.Port < 1 || cfg.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Value:   cfg.Port,
			Message: "must be between 1 and 65535",
		})
	}

	if cfg.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "server.host",
			Value:   cfg.Host,
			Message: "cannot be empty",
		})
	}

	if cfg.ReadTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.read_timeout",
			Value:   cfg.ReadTimeout,
			Message: "must be greater than 0",
		})
	}

	if cfg.WriteTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.write_timeout",
			Value:   cfg.WriteTimeout,
			Message: "must be greater than 0",
		})
	}

	if cfg.Concurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.concurrency",
			Value:   cfg.Concurrency,
			Message: "must be greater than 0",
		})
	}

	return errors
}

func validateUpstream(cfg *UpstreamConfig) ValidationErrors {
	var errors ValidationErrors

	if cfg.URL == "" {
		return errors
	}

	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errors = append(errors, ValidationError{
			Field:   "upstream.url",
			Value:   cfg.URL,
			Message: "must be an absolute http or https URL",
		})
	}

	if cfg.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "upstream.timeout",
			Value:   cfg.Timeout,
			Message: "must be greater than 0",
		})
	}

	return errors
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errors ValidationErrors

	validLevels := []string{"debug", "info", "warn", "error", "dpanic", "panic", "fatal"}
	levelValid := false
	for _, level := range validLevels {
		if cfg.Level == level {
			levelValid = true
			break
		}
	}
	if !levelValid {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   cfg.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		})
	}

	if cfg.Format != "json" && cfg.Format != "console" {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Value:   cfg.Format,
			Message: "must be either 'json' or 'console'",
		})
	}

	return errors
}

func validateMetrics(cfg *MetricsConfig) ValidationErrors {
	var errors ValidationErrors

	if cfg.Enabled && (cfg.Path == "" || !strings.HasPrefix(cfg.Path, "/")) {
		errors = append(errors, ValidationError{
			Field:   "metrics.path",
			Value:   cfg.Path,
			Message: "must start with '/'",
		})
	}

	return errors
}

func validateAdmin(cfg *AdminConfig) ValidationErrors {
	var errors ValidationErrors

	if cfg.Enabled && (cfg.Prefix == "" || !strings.HasPrefix(cfg.Prefix, "/") || cfg.Prefix == "/") {
		errors = append(errors, ValidationError{
			Field:   "admin.prefix",
			Value:   cfg.Prefix,
			Message: "must start with '/' and name a path segment",
		})
	}

	return errors
}

func validateMiddleware(cfg *MiddlewareConfig) ValidationErrors {
	var errors ValidationErrors

	if cfg.Timeout.Enabled && cfg.Timeout.Duration <= 0 {
		errors = append(errors, ValidationError{
			Field:   "middleware.timeout.duration",
			Value:   cfg.Timeout.Duration,
			Message: "must be greater than 0",
		})
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			errors = append(errors, ValidationError{
				Field:   "middleware.rate_limit.requests_per_second",
				Value:   cfg.RateLimit.RequestsPerSecond,
				Message: "must be greater than 0",
			})
		}
		if cfg.RateLimit.Burst < 1 {
			errors = append(errors, ValidationError{
				Field:   "middleware.rate_limit.burst",
				Value:   cfg.RateLimit.Burst,
				Message: "must be at least 1",
			})
		}
	}

	return errors
}
