package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrDocumentLoad indicates the registry file is missing or not parseable
	ErrDocumentLoad = errors.New("failed to load registry")
	// ErrDocumentSave indicates the registry file could not be written
	ErrDocumentSave = errors.New("failed to save registry")
)

// Store reads and writes the registry file
type Store struct {
	filePath string
	logger   *zap.Logger
	now      func() time.Time
}

// NewStore creates a Store for the registry at filePath
func NewStore(filePath string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		filePath: filePath,
		logger:   logger,
		now:      time.Now,
	}
}

// Path returns the registry file path
func (s *Store) Path() string {
	return s.filePath
}

// Load reads the registry from disk. The file is fully read and closed
// before this returns.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDocumentLoad, s.filePath, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDocumentLoad, s.filePath, err)
	}

	s.logger.Debug("registry loaded",
		zap.String("path", s.filePath),
		zap.Int("entries", len(doc.Entries())))
	return doc, nil
}

// Save refreshes metadata.last_updated and, unless dryRun is set, persists
// the document. A dry run reports success without touching the file.
func (s *Store) Save(doc *Document, dryRun bool) error {
	doc.Touch(s.now())

	if dryRun {
		s.logger.Debug("dry run, registry not written", zap.String("path", s.filePath))
		return nil
	}

	data, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDocumentSave, err)
	}
	if err := s.writeFile(data); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDocumentSave, s.filePath, err)
	}

	s.logger.Debug("registry saved", zap.String("path", s.filePath), zap.Int("bytes", len(data)))
	return nil
}

// writeFile replaces the registry atomically via a temp file in the same directory
func (s *Store) writeFile(data []byte) error {
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// the replacement inherits the permissions of the file it replaces
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(s.filePath); err == nil {
		mode = fi.Mode().Perm()
	}

	f, err := os.CreateTemp(dir, ".apps-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	// no-op once the rename has happened
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to set registry permissions: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to fsync registry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close registry file: %w", err)
	}

	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}

	// the rename is durable only once the directory is synced
	if dirf, err := os.Open(dir); err == nil {
		_ = dirf.Sync()
		_ = dirf.Close()
	}

	return nil
}
