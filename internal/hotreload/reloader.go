package hotreload

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"cassette/pkg/config"
)

// Reload types
const (
	ReloadConfig     = "config"
	ReloadRecordings = "recordings"
)

// ServerInterface is what the reloader drives
type ServerInterface interface {
	Restart(newConfig *config.Config) error
	// InvalidateRecordings drops anything cached about the recordings
	// directory.
	InvalidateRecordings()
}

// ReloadResult represents the result of a reload operation
type ReloadResult struct {
	Success    bool
	Duration   time.Duration
	Error      error
	Timestamp  time.Time
	ReloadType string
}

// HotReloader restarts the server when its configuration file changes and
// invalidates recording caches when the recordings directory changes
type HotReloader struct {
	server      ServerInterface
	configPath  string
	loadOptions config.LoadOptions
	watcher     *FileWatcher
	logger      *zap.Logger
	reloadChan  chan FileEvent
	done        chan struct{}
	stopOnce    sync.Once
	reloading   atomic.Bool

	mu            sync.RWMutex
	currentConfig *config.Config
	recordingsDir string

	totalReloads   atomic.Int64
	successReloads atomic.Int64
	failedReloads  atomic.Int64
	invalidations  atomic.Int64
	lastReloadTime atomic.Value // time.Time
}

// NewHotReloader creates a new hot reloader instance. opts are the options
// currentConfig was loaded with; every reload re-applies their overrides on
// top of the edited file. opts.File may be empty when the configuration came
// from defaults only.
func NewHotReloader(
	server ServerInterface,
	opts config.LoadOptions,
	currentConfig *config.Config,
	logger *zap.Logger,
) (*HotReloader, error) {
	if server == nil {
		return nil, fmt.Errorf("server cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if currentConfig == nil {
		return nil, fmt.Errorf("current config cannot be nil")
	}

	debounceDelay := currentConfig.HotReload.DebounceDelay
	if debounceDelay <= 0 {
		debounceDelay = 500 * time.Millisecond
	}

	watcher, err := NewFileWatcher(logger.With(zap.String("component", "file_watcher")), debounceDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	configPath := opts.File
	if configPath != "" {
		if configPath, err = filepath.Abs(configPath); err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
	}

	loadOptions := config.LoadOptions{
		File:      configPath,
		Overrides: make(map[string]interface{}, len(opts.Overrides)),
		Strict:    true,
	}
	for key, value := range opts.Overrides {
		loadOptions.Overrides[key] = value
	}

	hr := &HotReloader{
		server:        server,
		configPath:    configPath,
		loadOptions:   loadOptions,
		watcher:       watcher,
		logger:        logger.With(zap.String("component", "hot_reloader")),
		reloadChan:    make(chan FileEvent, 10),
		done:          make(chan struct{}),
		currentConfig: currentConfig,
	}
	hr.lastReloadTime.Store(time.Time{})

	return hr, nil
}

// Start watches the configuration file when hotreload.enabled is set and the
// recordings directory when store.watch is set
func (hr *HotReloader) Start() error {
	cfg := hr.Config()
	watchConfig := cfg.HotReload.Enabled && hr.configPath != ""
	watchRecordings := cfg.Store.Watch

	if !watchConfig && !watchRecordings {
		hr.logger.Info("Hot reload is disabled")
		return nil
	}

	hr.logger.Info("Starting hot reload system",
		zap.String("config_path", hr.configPath),
		zap.Bool("watch_config", watchConfig),
		zap.Bool("watch_recordings", watchRecordings),
		zap.Duration("debounce_delay", cfg.HotReload.DebounceDelay))

	if watchConfig {
		if err := hr.watcher.AddPath(filepath.Dir(hr.configPath)); err != nil {
			return fmt.Errorf("failed to watch config file: %w", err)
		}
	}

	if watchRecordings {
		if err := hr.watchRecordings(cfg.RecordingsDir); err != nil {
			return err
		}
	}

	if err := hr.watcher.Start(hr.onFileEvent); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	go hr.processReloads()

	hr.logger.Info("Hot reload system started successfully")
	return nil
}

// Stop stops the hot reload system
func (hr *HotReloader) Stop() error {
	var err error
	hr.stopOnce.Do(func() {
		hr.logger.Info("Stopping hot reload system...")
		close(hr.done)
		if err = hr.watcher.Stop(); err != nil {
			hr.logger.Error("Error stopping file watcher", zap.Error(err))
			return
		}
		hr.logger.Info("Hot reload system stopped")
	})
	return err
}

// Config returns the configuration currently in effect
func (hr *HotReloader) Config() *config.Config {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	return hr.currentConfig
}

func (hr *HotReloader) watchRecordings(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve recordings directory: %w", err)
	}
	if err := hr.watcher.AddPath(abs); err != nil {
		return fmt.Errorf("failed to watch recordings directory: %w", err)
	}

	hr.mu.Lock()
	hr.recordingsDir = abs
	hr.mu.Unlock()
	return nil
}

func (hr *HotReloader) onFileEvent(event FileEvent) {
	select {
	case hr.reloadChan <- event:
	case <-hr.done:
	default:
		hr.logger.Warn("Reload channel full, dropping event",
			zap.String("path", event.Path),
			zap.String("operation", event.Operation))
	}
}

func (hr *HotReloader) processReloads() {
	for {
		select {
		case <-hr.done:
			return
		case event := <-hr.reloadChan:
			hr.handleReloadEvent(event)
		}
	}
}

func (hr *HotReloader) handleReloadEvent(event FileEvent) {
	hr.mu.RLock()
	recordingsDir := hr.recordingsDir
	hr.mu.RUnlock()

	var result ReloadResult
	switch {
	case hr.configPath != "" && event.Path == hr.configPath:
		if event.Operation == "remove" || event.Operation == "rename" {
			hr.logger.Warn("Config file went away, keeping current configuration",
				zap.String("path", event.Path))
			return
		}
		result = hr.reloadConfig()
	case recordingsDir != "" && filepath.Dir(event.Path) == recordingsDir:
		result = hr.invalidateRecordings(event)
	default:
		return
	}

	hr.logReloadResult(result)
	hr.updateMetrics(result)
}

func (hr *HotReloader) reloadConfig() ReloadResult {
	start := time.Now()
	result := ReloadResult{
		ReloadType: ReloadConfig,
		Timestamp:  start,
	}

	if !hr.reloading.CompareAndSwap(false, true) {
		result.Error = fmt.Errorf("reload already in progress")
		return result
	}
	defer hr.reloading.Store(false)

	hr.logger.Info("Reloading configuration...", zap.String("path", hr.configPath))

	newConfig, _, err := config.Load(hr.loadOptions, hr.logger)
	if err != nil {
		result.Error = fmt.Errorf("failed to load new config: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	if err := config.Validate(newConfig); err != nil {
		result.Error = fmt.Errorf("invalid new config: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	if err := hr.server.Restart(newConfig); err != nil {
		result.Error = fmt.Errorf("failed to restart server with new config: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	previous := hr.Config()
	hr.mu.Lock()
	hr.currentConfig = newConfig
	hr.mu.Unlock()

	if newConfig.Store.Watch && newConfig.RecordingsDir != previous.RecordingsDir {
		if err := hr.watchRecordings(newConfig.RecordingsDir); err != nil {
			hr.logger.Warn("Failed to watch new recordings directory", zap.Error(err))
		}
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

func (hr *HotReloader) invalidateRecordings(event FileEvent) ReloadResult {
	start := time.Now()

	hr.server.InvalidateRecordings()
	hr.invalidations.Add(1)

	hr.logger.Debug("Recordings changed",
		zap.String("path", event.Path),
		zap.String("operation", event.Operation))

	return ReloadResult{
		Success:    true,
		ReloadType: ReloadRecordings,
		Timestamp:  start,
		Duration:   time.Since(start),
	}
}

func (hr *HotReloader) logReloadResult(result ReloadResult) {
	fields := []zap.Field{
		zap.String("type", result.ReloadType),
		zap.Duration("duration", result.Duration),
		zap.Bool("success", result.Success),
	}

	switch {
	case result.Error != nil:
		fields = append(fields, zap.Error(result.Error))
		hr.logger.Error("Reload failed", fields...)
	case result.ReloadType == ReloadConfig:
		hr.logger.Info("Reload completed successfully", fields...)
	}
}

func (hr *HotReloader) updateMetrics(result ReloadResult) {
	if result.ReloadType != ReloadConfig {
		return
	}
	hr.totalReloads.Add(1)
	if result.Success {
		hr.successReloads.Add(1)
	} else {
		hr.failedReloads.Add(1)
	}
	hr.lastReloadTime.Store(result.Timestamp)
}

// ReloadConfig manually triggers a configuration reload
func (hr *HotReloader) ReloadConfig() error {
	if hr.configPath == "" {
		return fmt.Errorf("no configuration file to reload")
	}

	result := hr.reloadConfig()
	hr.logReloadResult(result)
	hr.updateMetrics(result)
	return result.Error
}

// GetMetrics returns hot reload metrics
func (hr *HotReloader) GetMetrics() map[string]interface{} {
	lastReload, _ := hr.lastReloadTime.Load().(time.Time)

	return map[string]interface{}{
		"enabled":         hr.Config().HotReload.Enabled,
		"total_reloads":   hr.totalReloads.Load(),
		"success_reloads": hr.successReloads.Load(),
		"failed_reloads":  hr.failedReloads.Load(),
		"invalidations":   hr.invalidations.Load(),
		"last_reload":     lastReload,
		"reloading":       hr.reloading.Load(),
	}
}

// IsReloading returns true if a reload is currently in progress
func (hr *HotReloader) IsReloading() bool {
	return hr.reloading.Load()
}
