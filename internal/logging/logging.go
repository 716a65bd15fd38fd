// Package logging builds the process logger. Logs go to stderr so stdout
// stays free for command output and the MCP stdio stream.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Options selects level, format and an optional file sink.
type Options struct {
	Level  string
	Format string
	Path   string
	// Verbose forces debug level.
	Verbose bool
}

// New returns a logger and a close func for the file sink, if any. A file
// that cannot be opened falls back to stderr and is reported once.
func New(opts Options, stderr io.Writer) (*slog.Logger, func() error) {
	writer := stderr
	closeFn := func() error { return nil }

	if opts.Path != "" {
		fw, err := NewFileWriter(opts.Path)
		if err != nil {
			io.WriteString(stderr, "log file error: "+err.Error()+"\n")
		} else {
			writer = fw
			closeFn = fw.Close
		}
	}

	level := ParseLevel(opts.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}
	return slog.New(handler), closeFn
}

// ParseLevel maps a level name to a slog level; unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const (
	maxLogSizeBytes  = 6 * 1024 * 1024
	keepLogSizeBytes = 5 * 1024 * 1024
)

// FileWriter appends to a log file and, once it exceeds 6 MB, keeps only
// its last 5 MB.
type FileWriter struct {
	path string
	file *os.File
	mu   sync.Mutex

	maxSize  int64
	keepSize int64
}

// NewFileWriter opens path for appending, creating its directory.
func NewFileWriter(path string) (*FileWriter, error) {
	return newFileWriter(path, maxLogSizeBytes, keepLogSizeBytes)
}

func newFileWriter(path string, maxSize, keepSize int64) (*FileWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	w := &FileWriter{path: path, file: file, maxSize: maxSize, keepSize: keepSize}
	if err := w.truncateIfNeeded(); err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

func (w *FileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	if err != nil {
		return n, err
	}
	if err := w.truncateIfNeeded(); err != nil {
		return n, err
	}
	return n, nil
}

// Close closes the file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func (w *FileWriter) truncateIfNeeded() error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size <= w.maxSize {
		return nil
	}

	buf := make([]byte, w.keepSize)
	n, err := w.file.ReadAt(buf, size-w.keepSize)
	if err != nil && err != io.EOF {
		return err
	}
	buf = buf[:n]

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	// O_APPEND writes land at the new end of file.
	_, err = w.file.Write(buf)
	return err
}
