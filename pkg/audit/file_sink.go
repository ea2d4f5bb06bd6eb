package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileSink appends events as newline-delimited JSON to a file,
// rotating by size. Writes arrive serialized from the async consumer
// so no locking is needed here.
type FileSink struct {
	basePath string
	file     *os.File
	encoder  *json.Encoder
	written  int64
	maxSize  int64
	maxFiles int
}

// FileSinkConfig configures the file sink
type FileSinkConfig struct {
	BasePath string // Base directory for audit logs
	MaxSize  int64  // Max file size in bytes before rotation (default: 100MB)
	MaxFiles int    // Max number of rotated files to keep (default: 10)
}

// DefaultFileSinkConfig returns default configuration
func DefaultFileSinkConfig() FileSinkConfig {
	return FileSinkConfig{
		BasePath: "/var/log/authcore/audit",
		MaxSize:  100 * 1024 * 1024,
		MaxFiles: 10,
	}
}

// NewFileSink creates a file-based audit sink
func NewFileSink(config FileSinkConfig) (*FileSink, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}

	s := &FileSink{
		basePath: config.BasePath,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}
	if s.maxSize == 0 {
		s.maxSize = 100 * 1024 * 1024
	}
	if s.maxFiles == 0 {
		s.maxFiles = 10
	}

	if err := s.openLogFile(); err != nil {
		return nil, err
	}
	return s, nil
}

// Write appends one event, rotating first when the file is full.
func (s *FileSink) Write(_ context.Context, event *Event) error {
	if s.written >= s.maxSize {
		if err := s.rotateFile(); err != nil {
			return fmt.Errorf("rotating audit log: %w", err)
		}
		if err := s.openLogFile(); err != nil {
			return err
		}
	}

	before := s.written
	if err := s.encoder.Encode(event); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	// json.Encoder gives no byte count; re-stat is cheap enough at
	// audit event rates.
	if info, err := s.file.Stat(); err == nil {
		s.written = info.Size()
	} else {
		s.written = before + 1
	}
	return nil
}

func (s *FileSink) openLogFile() error {
	filename := filepath.Join(s.basePath, "audit.log")
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening audit log file: %w", err)
	}
	s.file = file
	s.encoder = json.NewEncoder(file)
	s.written = 0
	if info, err := file.Stat(); err == nil {
		s.written = info.Size()
	}
	return nil
}

func (s *FileSink) rotateFile() error {
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}

	current := filepath.Join(s.basePath, "audit.log")
	timestamp := time.Now().Format("2006-01-02-15-04-05")
	rotated := filepath.Join(s.basePath, fmt.Sprintf("audit-%s.log", timestamp))
	if err := os.Rename(current, rotated); err != nil {
		return fmt.Errorf("renaming audit log file: %w", err)
	}

	if err := s.cleanupOldFiles(); err != nil {
		// Cleanup failure never blocks new writes.
		fmt.Fprintf(os.Stderr, "failed to cleanup old audit logs: %v\n", err)
	}
	return nil
}

func (s *FileSink) cleanupOldFiles() error {
	pattern := filepath.Join(s.basePath, "audit-*.log")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}
	if len(files) <= s.maxFiles {
		return nil
	}
	// Timestamped names sort chronologically.
	sort.Strings(files)
	for _, file := range files[:len(files)-s.maxFiles] {
		if err := os.Remove(file); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the current log file.
func (s *FileSink) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
