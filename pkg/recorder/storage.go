package recorder

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// RecordingExt is the extension of every recording file
const RecordingExt = ".json"

var (
	// ErrNotFound is returned when no recording matches a lookup
	ErrNotFound = errors.New("recording not found")
	// ErrMalformed wraps recording files that cannot be parsed
	ErrMalformed = errors.New("malformed recording")
	// ErrInvalidName is returned for filenames that leave the directory
	ErrInvalidName = errors.New("invalid recording filename")
)

// Store persists interactions as files and looks them up again
type Store interface {
	// Save writes it to <dir>/<filename>.json, replacing any existing file
	Save(filename string, it *Interaction) error
	// ListAll parses every recording, skipping files that fail to parse
	ListAll() ([]*Interaction, error)
	// Find returns the first recording whose key equals requestKey, or else
	// the recording stored under fallbackFilename. ErrNotFound otherwise.
	Find(requestKey, fallbackFilename string) (*Interaction, error)
	// Load reads one recording by filename, with or without extension
	Load(filename string) (*Interaction, error)
	Delete(filename string) error
	List() ([]RecordingInfo, error)
	Stats() StorageStats
	Dir() string
}

// FileStore keeps one pretty-printed JSON document per interaction directly
// under a directory. Lookups rescan the directory every time. Files are
// visited in filename order, so the first match is deterministic.
type FileStore struct {
	directory string
	logger    *zap.Logger
}

// NewFileStore creates the directory if needed and returns a store over it
func NewFileStore(directory string, logger *zap.Logger) (*FileStore, error) {
	if directory == "" {
		return nil, fmt.Errorf("recordings directory cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	return &FileStore{
		directory: directory,
		logger:    logger,
	}, nil
}

// Dir returns the recordings directory
func (fs *FileStore) Dir() string {
	return fs.directory
}

// Save stores an interaction to the filesystem
func (fs *FileStore) Save(filename string, it *Interaction) error {
	if it == nil {
		return fmt.Errorf("interaction cannot be nil")
	}

	path, err := fs.pathFor(filename)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(fs.directory, 0755); err != nil {
		return fmt.Errorf("failed to create recordings directory: %w", err)
	}

	if err := saveToFile(it, path); err != nil {
		return fmt.Errorf("failed to save recording %s: %w", filepath.Base(path), err)
	}

	return nil
}

// ListAll returns every parseable recording in directory order
func (fs *FileStore) ListAll() ([]*Interaction, error) {
	names, err := fs.recordingFiles()
	if err != nil {
		return nil, err
	}

	interactions := make([]*Interaction, 0, len(names))
	for _, name := range names {
		it, err := loadFromFile(filepath.Join(fs.directory, name))
		if err != nil {
			fs.logger.Warn("Skipping unreadable recording",
				zap.String("file", name),
				zap.Error(err))
			continue
		}
		interactions = append(interactions, it)
	}

	return interactions, nil
}

// Find scans for an exact requestKey match, then tries fallbackFilename
func (fs *FileStore) Find(requestKey, fallbackFilename string) (*Interaction, error) {
	interactions, err := fs.ListAll()
	if err != nil {
		return nil, err
	}

	for _, it := range interactions {
		if it.RequestKey == requestKey {
			return it, nil
		}
	}

	return fs.findFallback(fallbackFilename)
}

// findFallback loads the recording stored under filename. A missing or
// unparseable file is not found.
func (fs *FileStore) findFallback(filename string) (*Interaction, error) {
	if filename == "" {
		return nil, ErrNotFound
	}

	it, err := fs.Load(filename)
	if err == nil {
		return it, nil
	}
	if errors.Is(err, ErrMalformed) {
		fs.logger.Warn("Ignoring unreadable fallback recording",
			zap.String("file", filename),
			zap.Error(err))
		return nil, ErrNotFound
	}
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	return nil, err
}

// Load reads a recording by filename
func (fs *FileStore) Load(filename string) (*Interaction, error) {
	path, err := fs.pathFor(filename)
	if err != nil {
		return nil, err
	}

	it, err := loadFromFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return nil, err
	}
	return it, nil
}

// Delete removes a recording by filename
func (fs *FileStore) Delete(filename string) error {
	path, err := fs.pathFor(filename)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return fmt.Errorf("failed to delete recording file: %w", err)
	}
	return nil
}

// List describes every parseable recording in directory order
func (fs *FileStore) List() ([]RecordingInfo, error) {
	names, err := fs.recordingFiles()
	if err != nil {
		return nil, err
	}

	infos := make([]RecordingInfo, 0, len(names))
	for _, name := range names {
		path := filepath.Join(fs.directory, name)
		it, err := loadFromFile(path)
		if err != nil {
			fs.logger.Warn("Skipping unreadable recording",
				zap.String("file", name),
				zap.Error(err))
			continue
		}

		info := RecordingInfo{
			Filename:   name,
			Method:     it.Request.Method,
			URL:        it.Request.URL,
			Status:     it.Response.Status,
			RequestKey: it.RequestKey,
		}
		if stat, err := os.Stat(path); err == nil {
			info.Size = stat.Size()
			info.ModTime = stat.ModTime()
		}
		infos = append(infos, info)
	}

	return infos, nil
}

// Stats returns storage statistics
func (fs *FileStore) Stats() StorageStats {
	stats := StorageStats{Directory: fs.directory}

	names, err := fs.recordingFiles()
	if err != nil {
		return stats
	}

	for _, name := range names {
		path := filepath.Join(fs.directory, name)
		if info, err := os.Stat(path); err == nil {
			stats.TotalSize += info.Size()
		}
		if _, err := loadFromFile(path); err != nil {
			stats.Unreadable++
			continue
		}
		stats.TotalRecordings++
	}

	return stats
}

// recordingFiles lists *.json files directly under the directory. os.ReadDir
// sorts by filename.
func (fs *FileStore) recordingFiles() ([]string, error) {
	entries, err := os.ReadDir(fs.directory)
	if err != nil {
		return nil, fmt.Errorf("failed to read recordings directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != RecordingExt {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func (fs *FileStore) pathFor(filename string) (string, error) {
	name := strings.TrimSuffix(filename, RecordingExt)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}
	return filepath.Join(fs.directory, name+RecordingExt), nil
}

// saveToFile saves an interaction to a file
func saveToFile(it *Interaction, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(it)
}

// loadFromFile loads an interaction from a file. Unknown fields are ignored.
func loadFromFile(path string) (*Interaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var it Interaction
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, filepath.Base(path), err)
	}
	return &it, nil
}

// IndexedStore keeps an in-memory requestKey index over another store so
// exact-key lookups skip the directory scan. The index is rebuilt lazily
// after every Save, Delete or Invalidate. It is off by default.
type IndexedStore struct {
	Store
	logger *zap.Logger

	mu    sync.RWMutex
	index map[string]string // requestKey -> filename
	built bool
}

// NewIndexedStore wraps store with a lazily built index
func NewIndexedStore(store Store, logger *zap.Logger) *IndexedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexedStore{
		Store:  store,
		logger: logger,
	}
}

// Save writes through and invalidates the index
func (s *IndexedStore) Save(filename string, it *Interaction) error {
	defer s.Invalidate()
	return s.Store.Save(filename, it)
}

// Delete removes through and invalidates the index
func (s *IndexedStore) Delete(filename string) error {
	defer s.Invalidate()
	return s.Store.Delete(filename)
}

// Invalidate drops the index; the next lookup rebuilds it
func (s *IndexedStore) Invalidate() {
	s.mu.Lock()
	s.index = nil
	s.built = false
	s.mu.Unlock()
}

// Find answers exact-key lookups from the index and otherwise falls back to
// the file stored under fallbackFilename, like the underlying store
func (s *IndexedStore) Find(requestKey, fallbackFilename string) (*Interaction, error) {
	filename, ok, err := s.lookup(requestKey)
	if err != nil {
		return nil, err
	}

	if ok {
		it, err := s.Store.Load(filename)
		if err == nil && it.RequestKey == requestKey {
			return it, nil
		}
		// The file changed behind the index.
		s.Invalidate()
		return s.Store.Find(requestKey, fallbackFilename)
	}

	if fallbackFilename == "" {
		return nil, ErrNotFound
	}

	it, err := s.Store.Load(fallbackFilename)
	switch {
	case err == nil:
		return it, nil
	case errors.Is(err, ErrMalformed):
		s.logger.Warn("Ignoring unreadable fallback recording",
			zap.String("file", fallbackFilename),
			zap.Error(err))
		return nil, ErrNotFound
	case errors.Is(err, ErrNotFound):
		return nil, ErrNotFound
	default:
		return nil, err
	}
}

// Len returns the number of distinct keys in the index, building it if needed
func (s *IndexedStore) Len() (int, error) {
	if err := s.build(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index), nil
}

func (s *IndexedStore) lookup(requestKey string) (string, bool, error) {
	if err := s.build(); err != nil {
		return "", false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	filename, ok := s.index[requestKey]
	return filename, ok, nil
}

func (s *IndexedStore) build() error {
	s.mu.RLock()
	built := s.built
	s.mu.RUnlock()
	if built {
		return nil
	}

	infos, err := s.Store.List()
	if err != nil {
		return err
	}

	index := make(map[string]string, len(infos))
	for _, info := range infos {
		// First file in directory order wins, as in a scan.
		if _, exists := index[info.RequestKey]; !exists {
			index[info.RequestKey] = info.Filename
		}
	}

	s.mu.Lock()
	s.index = index
	s.built = true
	s.mu.Unlock()

	s.logger.Debug("Recording index built", zap.Int("keys", len(index)))
	return nil
}
