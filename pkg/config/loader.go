package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables that override file values
const EnvPrefix = "CASSETTE"

// ConfigFileNames are the project marker files Discover looks for, in order
var ConfigFileNames = []string{
	"cassette.yaml",
	"cassette.yml",
	"cassette.json",
	".cassette.yaml",
}

// LoadOptions controls how Load assembles a configuration
type LoadOptions struct {
	// File is an explicit configuration file. When empty, Discover runs from SearchDir.
	File string
	// SearchDir is where discovery starts. Defaults to the working directory.
	SearchDir string
	// Overrides win over file and environment values. Keys use dotted paths
	// such as "matching.include_query".
	Overrides map[string]interface{}
	// Strict turns an unreadable File into an error instead of a warning.
	Strict bool
}

// Load builds a configuration from defaults, an optional file and overrides,
// later layers winning. Unless opts.Strict is set, a file that cannot be read
// is logged and skipped, so Load only fails when the merged values cannot be
// decoded. The returned path is the file that was actually used, or empty.
func Load(opts LoadOptions, logger *zap.Logger) (*Config, string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := newViper()

	path := opts.File
	if path == "" {
		dir := opts.SearchDir
		if dir == "" {
			if wd, err := os.Getwd(); err == nil {
				dir = wd
			}
		}
		if dir != "" {
			path = Discover(dir)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if opts.Strict {
				return nil, "", fmt.Errorf("failed to read config file: %w", err)
			}
			logger.Warn("Failed to load config file, continuing with defaults",
				zap.String("file", path),
				zap.Error(err))
			path = ""
		}
	}

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, "", err
	}

	return cfg, path, nil
}

// LoadFromFile loads configuration from a YAML or JSON file and fails if the
// file cannot be read
func LoadFromFile(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return decode(v)
}

// Discover walks from dir up to the filesystem root and returns the first
// project config file it finds, or an empty string
func Discover(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		for _, name := range ConfigFileNames {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// WriteToFile writes configuration to a YAML file
func WriteToFile(cfg *Config, filePath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.RecordingsDir != "" {
		abs, err := filepath.Abs(cfg.RecordingsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve recordings directory: %w", err)
		}
		cfg.RecordingsDir = abs
	}

	return &cfg, nil
}

// setDefaults registers every key of DefaultConfig with viper so that
// environment variables and overrides can reach it
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("mode", string(d.Mode))
	v.SetDefault("recordings_dir", d.RecordingsDir)
	v.SetDefault("naming_pattern", d.NamingPattern)

	// Matching defaults
	v.SetDefault("matching.include_query", d.Matching.IncludeQuery)
	v.SetDefault("matching.include_headers", d.Matching.IncludeHeaders)
	v.SetDefault("matching.include_body", d.Matching.IncludeBody)
	v.SetDefault("matching.case_sensitive", d.Matching.CaseSensitive)

	// Filter defaults
	v.SetDefault("filters.methods", d.Filters.Methods)
	v.SetDefault("filters.url_patterns", d.Filters.URLPatterns)
	v.SetDefault("filters.exclude_patterns", d.Filters.ExcludePatterns)

	// Store defaults
	v.SetDefault("store.index", d.Store.Index)
	v.SetDefault("store.persist_counter", d.Store.PersistCounter)
	v.SetDefault("store.watch", d.Store.Watch)

	// Server defaults
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.max_conns_per_ip", d.Server.MaxConnsPerIP)
	v.SetDefault("server.concurrency", d.Server.Concurrency)

	v.SetDefault("upstream.url", d.Upstream.URL)
	v.SetDefault("upstream.timeout", d.Upstream.Timeout)

	// Logging defaults
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.add_caller", d.Logging.AddCaller)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("admin.enabled", d.Admin.Enabled)
	v.SetDefault("admin.prefix", d.Admin.Prefix)
	v.SetDefault("admin.jwt_secret", d.Admin.JWTSecret)
	v.SetDefault("admin.jwt_issuer", d.Admin.JWTIssuer)

	// Middleware defaults
	v.SetDefault("middleware.request_id", d.Middleware.RequestID)
	v.SetDefault("middleware.cors.enabled", d.Middleware.CORS.Enabled)
	v.SetDefault("middleware.cors.allow_origins", d.Middleware.CORS.AllowOrigins)
	v.SetDefault("middleware.cors.allow_methods", d.Middleware.CORS.AllowMethods)
	v.SetDefault("middleware.cors.allow_headers", d.Middleware.CORS.AllowHeaders)
	v.SetDefault("middleware.cors.allow_credentials", d.Middleware.CORS.AllowCredentials)
	v.SetDefault("middleware.cors.max_age", d.Middleware.CORS.MaxAge)
	v.SetDefault("middleware.timeout.enabled", d.Middleware.Timeout.Enabled)
	v.SetDefault("middleware.timeout.duration", d.Middleware.Timeout.Duration)
	v.SetDefault("middleware.recovery.enabled", d.Middleware.Recovery.Enabled)
	v.SetDefault("middleware.recovery.log_stack", d.Middleware.Recovery.LogStack)
	v.SetDefault("middleware.rate_limit.enabled", d.Middleware.RateLimit.Enabled)
	v.SetDefault("middleware.rate_limit.requests_per_second", d.Middleware.RateLimit.RequestsPerSecond)
	v.SetDefault("middleware.rate_limit.burst", d.Middleware.RateLimit.Burst)

	v.SetDefault("hotreload.enabled", d.HotReload.Enabled)
	v.SetDefault("hotreload.debounce_delay", d.HotReload.DebounceDelay)
}
