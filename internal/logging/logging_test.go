package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	require.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestNew_TextAndJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn := New(Options{Level: "info"}, &buf)
	defer closeFn()
	logger.Debug("hidden")
	logger.Info("shown", "project", "demo")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "project=demo")

	buf.Reset()
	logger, _ = New(Options{Format: "json", Verbose: true}, &buf)
	logger.Debug("visible")
	require.Contains(t, buf.String(), `"msg":"visible"`)
}

func TestNew_FileSink(t *testing.T) {
	var stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "qasync.log")
	logger, closeFn := New(Options{Path: path}, &stderr)
	logger.Info("to file")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "to file")
	require.Empty(t, stderr.String())
}

func TestFileWriter_TruncatesToTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w, err := newFileWriter(path, 100, 40)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 12; i++ {
		_, err := w.Write([]byte(strings.Repeat(string(rune('a'+i)), 10)))
		require.NoError(t, err)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.LessOrEqual(t, len(data), 100)
	require.True(t, strings.HasSuffix(string(data), strings.Repeat("l", 10)), "newest bytes are kept")
}
