// Package logsink records relay errors that have no connection or dialog to
// be reported to.
package logsink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// File appends errors as slog JSON lines to a file.
type File struct {
	mu     sync.Mutex
	f      *os.File
	logger *slog.Logger
}

// Open opens path in append mode, creating it when missing.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}
	return &File{f: f, logger: slog.New(slog.NewJSONHandler(f, nil))}, nil
}

// New writes to w. The caller owns w.
func New(w io.Writer) *File {
	return &File{logger: slog.New(slog.NewJSONHandler(w, nil))}
}

func (s *File) LogError(ctx context.Context, msg string, attrs ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.ErrorContext(ctx, msg, attrs...)
}

// Close closes the underlying file, if any.
func (s *File) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}
