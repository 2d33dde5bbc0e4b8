package recorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// CounterFilename is the file FileCounter keeps its value in, inside the
// recordings directory
const CounterFilename = ".cassette-counter"

// Counter hands out the monotonically increasing numbers used by {counter}
type Counter interface {
	Next() int64
}

// MemoryCounter lives as long as the process. It starts again at 1 after a
// restart, so patterns that rely on {counter} alone reuse filenames across
// runs and the newer recording overwrites the older one.
type MemoryCounter struct {
	n atomic.Int64
}

// NewMemoryCounter creates a counter whose first value is 1
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{}
}

// Next returns the next value
func (c *MemoryCounter) Next() int64 {
	return c.n.Add(1)
}

// FileCounter persists its last value so numbering continues across restarts
// of the same recordings directory. It does not coordinate between processes.
type FileCounter struct {
	mu     sync.Mutex
	path   string
	value  int64
	logger *zap.Logger
}

// NewFileCounter loads the last value from path. A missing file starts at
// zero; an unreadable one is logged and also starts at zero.
func NewFileCounter(path string, logger *zap.Logger) (*FileCounter, error) {
	if path == "" {
		return nil, fmt.Errorf("counter path cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &FileCounter{
		path:   path,
		logger: logger,
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read counter file: %w", err)
	default:
		value, perr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if perr != nil {
			logger.Warn("Ignoring malformed counter file",
				zap.String("file", path),
				zap.Error(perr))
		} else {
			c.value = value
		}
	}

	return c, nil
}

// NewDirCounter is NewFileCounter for the standard file inside dir
func NewDirCounter(dir string, logger *zap.Logger) (*FileCounter, error) {
	return NewFileCounter(filepath.Join(dir, CounterFilename), logger)
}

// Next increments, persists and returns the value. A failed write is logged;
// the in-memory value still advances.
func (c *FileCounter) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value++
	if err := os.WriteFile(c.path, []byte(strconv.FormatInt(c.value, 10)), 0644); err != nil {
		c.logger.Warn("Failed to persist counter",
			zap.String("file", c.path),
			zap.Error(err))
	}
	return c.value
}
