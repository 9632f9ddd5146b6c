// Package storage persists accepted syslog records. The primary backend is
// a set of severity-named JSON-lines files; an optional ClickHouse mirror
// receives batched copies.
package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/thisisjab/sluice/entity"
)

// fallbackSeverity receives records whose severity names no known file.
const fallbackSeverity = "info"

// SeverityFileStorage appends records to <dir>/<severity>.log, one JSON
// object per line. All eight files are opened once at construction and each
// write is flushed so tails observe records promptly.
type SeverityFileStorage struct {
	dir    string
	logger *slog.Logger
	files  map[string]*severityFile
}

type severityFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *bufio.Writer
}

// NewSeverityFileStorage creates the log directory if needed and opens one
// append-only file per severity.
func NewSeverityFileStorage(logger *slog.Logger, dir string) (*SeverityFileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create log directory %s: %w", dir, err)
	}

	s := &SeverityFileStorage{
		dir:    dir,
		logger: logger,
		files:  make(map[string]*severityFile, len(entity.Severities())),
	}

	for _, severity := range entity.Severities() {
		path := filepath.Join(dir, severity+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("cannot open %s: %w", path, err)
		}
		s.files[severity] = &severityFile{path: path, f: f, w: bufio.NewWriter(f)}
	}

	return s, nil
}

// Store appends one record to the file named by its severity. Unknown
// severities are routed to info.log with a diagnostic. Whole lines never
// interleave: the per-file mutex is held across write and flush.
func (s *SeverityFileStorage) Store(_ context.Context, msg entity.Message) error {
	sf, ok := s.files[msg.Severity]
	if !ok {
		s.logger.Warn("unknown severity. routing to fallback file.",
			"severity", msg.Severity, "fallback", fallbackSeverity)
		sf = s.files[fallbackSeverity]
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("cannot encode record: %w", err)
	}
	data = append(data, '\n')

	sf.mu.Lock()
	defer sf.mu.Unlock()

	if _, err := sf.w.Write(data); err != nil {
		return fmt.Errorf("cannot write to %s: %w", sf.path, err)
	}
	if err := sf.w.Flush(); err != nil {
		return fmt.Errorf("cannot flush %s: %w", sf.path, err)
	}

	return nil
}

// Dir returns the directory the severity files live in.
func (s *SeverityFileStorage) Dir() string {
	return s.dir
}

// Close flushes and closes every open file.
func (s *SeverityFileStorage) Close() error {
	var errs []error
	for _, sf := range s.files {
		sf.mu.Lock()
		if err := sf.w.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", sf.path, err))
		}
		if err := sf.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", sf.path, err))
		}
		sf.mu.Unlock()
	}
	return errors.Join(errs...)
}
