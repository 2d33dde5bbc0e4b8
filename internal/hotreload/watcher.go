package hotreload

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileEvent represents a file system event
type FileEvent struct {
	Path      string
	Operation string // create, write, remove, rename
	Timestamp time.Time
}

// FileWatcher watches directories for changes to configuration and
// recording files
type FileWatcher struct {
	watcher      *fsnotify.Watcher
	logger       *zap.Logger
	debouncer    *Debouncer
	watchedPaths map[string]bool
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(logger *zap.Logger, debounceDelay time.Duration) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FileWatcher{
		watcher:      watcher,
		logger:       logger,
		debouncer:    NewDebouncer(debounceDelay),
		watchedPaths: make(map[string]bool),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// AddPath adds a directory to watch. Watching the directory rather than a
// single file keeps editors that save by rename visible.
func (fw *FileWatcher) AddPath(path string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if fw.watchedPaths[absPath] {
		return nil
	}

	if err := fw.watcher.Add(absPath); err != nil {
		return err
	}

	fw.watchedPaths[absPath] = true
	fw.logger.Debug("Added path to watcher", zap.String("path", absPath))

	return nil
}

// RemovePath removes a path from watching
func (fw *FileWatcher) RemovePath(path string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if !fw.watchedPaths[absPath] {
		return nil
	}

	if err := fw.watcher.Remove(absPath); err != nil {
		return err
	}

	delete(fw.watchedPaths, absPath)
	fw.logger.Debug("Removed path from watcher", zap.String("path", absPath))

	return nil
}

// WatchedPaths returns the number of watched paths
func (fw *FileWatcher) WatchedPaths() int {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return len(fw.watchedPaths)
}

// Start starts the file watcher with a callback function
func (fw *FileWatcher) Start(callback func(FileEvent)) error {
	go fw.watchLoop(callback)
	fw.logger.Info("File watcher started", zap.Int("watched_paths", fw.WatchedPaths()))
	return nil
}

// Stop stops the file watcher
func (fw *FileWatcher) Stop() error {
	fw.cancel()
	fw.debouncer.Stop()

	if err := fw.watcher.Close(); err != nil {
		fw.logger.Error("Error closing file watcher", zap.Error(err))
		return err
	}

	fw.logger.Info("File watcher stopped")
	return nil
}

func (fw *FileWatcher) watchLoop(callback func(FileEvent)) {
	for {
		select {
		case <-fw.ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event, callback)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event, callback func(FileEvent)) {
	if !isRelevantFile(event.Name) {
		return
	}
	// Permission changes never alter content.
	if event.Op == fsnotify.Chmod {
		return
	}

	operation := convertOperation(event.Op)
	path, err := filepath.Abs(event.Name)
	if err != nil {
		path = event.Name
	}

	fw.logger.Debug("File event detected",
		zap.String("path", path),
		zap.String("operation", operation))

	fw.debouncer.Debounce(path, func() {
		callback(FileEvent{
			Path:      path,
			Operation: operation,
			Timestamp: time.Now(),
		})
	})
}

// isRelevantFile reports whether path is a configuration or recording file
func isRelevantFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

func convertOperation(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return "unknown"
	}
}

// Debouncer collapses bursts of calls per key into the last one
type Debouncer struct {
	delay   time.Duration
	timers  map[string]*time.Timer
	mu      sync.Mutex
	stopped bool
}

// NewDebouncer creates a new debouncer
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:  delay,
		timers: make(map[string]*time.Timer),
	}
}

// Debounce runs fn once no further call for key arrived within the delay
func (d *Debouncer) Debounce(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if timer, exists := d.timers[key]; exists {
		timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.stopped || d.timers[key] != timer {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()

		fn()
	})
	d.timers[key] = timer
}

// Pending returns the number of calls waiting to fire
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop cancels all pending calls. Later Debounce calls are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for key, timer := range d.timers {
		timer.Stop()
		delete(d.timers, key)
	}
}
