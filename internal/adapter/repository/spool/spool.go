package spool

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/logrelay/internal/domain"
)

const (
	segmentPrefix = "segment-"
	segmentSuffix = ".jsonl"
	filePerm      = 0644
	maxRecordSize = 1 << 20
)

// ErrFull is returned when a write would push the spool past its size cap.
var ErrFull = errors.New("mirror spool is full")

// Spool holds mirror records on local disk while the stream is unreachable.
// Records are appended as JSON lines to size-capped segment files and handed
// back oldest first by Drain.
type Spool struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger

	mu          sync.Mutex
	current     *os.File
	currentPath string
	currentSize int64
	totalSize   int64
	drainMu     sync.Mutex
}

// New opens (or creates) a spool in dir. Segments left by a previous run are
// kept and will be drained.
func New(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*Spool, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory %s: %w", dir, err)
	}

	s := &Spool{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "mirror_spool"),
	}

	segments, err := s.segments()
	if err != nil {
		return nil, err
	}
	for _, path := range segments {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat segment %s: %w", path, err)
		}
		s.totalSize += info.Size()
	}
	if len(segments) > 0 {
		s.logger.Info("Found spooled records from a previous run", "segment_count", len(segments), "bytes", s.totalSize)
	}
	return s, nil
}

// Write appends record to the current segment.
func (s *Spool) Write(ctx context.Context, record domain.LogRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record for spool: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.totalSize+int64(len(data)) > s.maxTotalSize {
		return fmt.Errorf("%w (%d bytes held, cap %d)", ErrFull, s.totalSize, s.maxTotalSize)
	}

	if s.current == nil {
		if err := s.openSegment(); err != nil {
			return err
		}
	}

	n, err := s.current.Write(data)
	s.currentSize += int64(n)
	s.totalSize += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write to spool segment: %w", err)
	}

	if s.currentSize >= s.maxSegmentSize {
		s.seal()
	}
	return nil
}

// Pending reports whether any spooled records are waiting to be drained.
func (s *Spool) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalSize > 0
}

// Drain seals the current segment and passes every spooled record, oldest
// first, to handler. Each segment is removed once all its records were
// handled. On a handler error the remaining segments are kept; records of the
// interrupted segment that were already handled will be handed out again.
// Writes may continue while a drain is in progress.
func (s *Spool) Drain(ctx context.Context, handler func(domain.LogRecord) error) (int, error) {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	s.mu.Lock()
	s.seal()
	segments, err := s.segments()
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	drained := 0
	for _, path := range segments {
		n, err := s.replaySegment(ctx, path, handler)
		drained += n
		if err != nil {
			return drained, err
		}

		info, statErr := os.Stat(path)
		if err := os.Remove(path); err != nil {
			return drained, fmt.Errorf("failed to remove drained segment %s: %w", path, err)
		}
		if statErr == nil {
			s.mu.Lock()
			s.totalSize -= info.Size()
			s.mu.Unlock()
		}
	}

	if drained > 0 {
		s.logger.Info("Drained spooled records", "count", drained, "segment_count", len(segments))
	}
	return drained, nil
}

func (s *Spool) replaySegment(ctx context.Context, path string, handler func(domain.LogRecord) error) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open segment %s for drain: %w", path, err)
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		var record domain.LogRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			// A torn final line after a crash is expected; anything else is logged too.
			s.logger.Warn("Skipping unreadable spooled record", "segment", path, "error", err)
			continue
		}
		if err := handler(record); err != nil {
			return count, fmt.Errorf("spool drain handler failed: %w", err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return count, nil
}

// Close syncs and closes the open segment.
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	err := s.current.Sync()
	if cerr := s.current.Close(); err == nil {
		err = cerr
	}
	s.current = nil
	return err
}

// openSegment starts a new segment file. Callers hold mu.
func (s *Spool) openSegment() error {
	name := fmt.Sprintf("%s%020d%s", segmentPrefix, time.Now().UnixNano(), segmentSuffix)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create spool segment %s: %w", path, err)
	}
	s.current = f
	s.currentPath = path
	s.currentSize = 0
	s.logger.Debug("Opened spool segment", "path", path)
	return nil
}

// seal closes the open segment so it can be drained. Callers hold mu.
func (s *Spool) seal() {
	if s.current == nil {
		return
	}
	if err := s.current.Sync(); err != nil {
		s.logger.Error("Failed to sync spool segment", "path", s.currentPath, "error", err)
	}
	if err := s.current.Close(); err != nil {
		s.logger.Error("Failed to close spool segment", "path", s.currentPath, "error", err)
	}
	s.current = nil
	s.currentPath = ""
	s.currentSize = 0
}

// segments lists segment files oldest first. The zero-padded timestamp in
// each name makes lexical order chronological.
func (s *Spool) segments() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool directory: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, segmentPrefix) && strings.HasSuffix(name, segmentSuffix) {
			segments = append(segments, filepath.Join(s.dir, name))
		}
	}
	sort.Strings(segments)
	return segments, nil
}
