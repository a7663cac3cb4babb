package daily

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	dateLayout = "2006-01-02"
	fileSuffix = ".LOG"
	filePerm   = 0644
)

// Store appends rendered lines to one file per calendar day under dir.
// The file for the most recent day is kept open and rotated when the date
// changes; appends for other days open, write and close their file.
type Store struct {
	dir    string
	logger *slog.Logger

	mu          sync.Mutex
	current     *os.File
	currentPath string
}

// NewStore creates the base directory if needed and returns a Store.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With("component", "daily_store"),
	}, nil
}

// PathFor returns the file that holds lines for date.
func (s *Store) PathFor(date time.Time) string {
	return filepath.Join(s.dir, date.Format(dateLayout)+fileSuffix)
}

// Append writes line to the file for date and syncs it before returning.
// The whole line goes out in a single write under the store lock, so
// concurrent appends never interleave.
func (s *Store) Append(ctx context.Context, date time.Time, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.PathFor(date)
	f, closeAfter, err := s.fileFor(path)
	if err != nil {
		return err
	}
	if closeAfter {
		defer f.Close()
	}

	if _, err := f.WriteString(line); err != nil {
		s.dropCurrent(path)
		return fmt.Errorf("failed to write to log file %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		s.dropCurrent(path)
		return fmt.Errorf("failed to sync log file %s: %w", path, err)
	}
	return nil
}

// fileFor returns a handle for path. Callers hold s.mu. The second return
// value reports whether the caller owns the handle and must close it.
func (s *Store) fileFor(path string) (*os.File, bool, error) {
	if s.current != nil && s.currentPath == path {
		if !s.stale() {
			return s.current, false, nil
		}
		s.logger.Warn("Daily log file was moved or removed, reopening", "path", path)
		s.dropCurrent(path)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	// Only roll forward; a late append for an earlier day must not evict
	// today's handle.
	if s.current == nil || path > s.currentPath {
		s.rotate(f, path)
		return f, false, nil
	}
	return f, true, nil
}

// stale reports whether the cached handle no longer refers to the file at
// currentPath, e.g. after the file or its directory was removed.
func (s *Store) stale() bool {
	onDisk, err := os.Stat(s.currentPath)
	if err != nil {
		return true
	}
	open, err := s.current.Stat()
	if err != nil {
		return true
	}
	return !os.SameFile(onDisk, open)
}

func (s *Store) rotate(f *os.File, path string) {
	if s.current != nil {
		if err := s.current.Close(); err != nil {
			s.logger.Error("Failed to close log file before rotating", "path", s.currentPath, "error", err)
		}
		s.logger.Info("Rotated to new daily log file", "from", s.currentPath, "to", path)
	}
	s.current = f
	s.currentPath = path
}

// dropCurrent forgets the cached handle after a failed write so the next
// append reopens the file. Callers hold s.mu.
func (s *Store) dropCurrent(path string) {
	if s.current == nil || s.currentPath != path {
		return
	}
	_ = s.current.Close()
	s.current = nil
	s.currentPath = ""
}

// Close releases the open handle, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current = nil
	s.currentPath = ""
	return err
}
