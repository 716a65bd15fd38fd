package jsonl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/qasync/internal/source"
)

func TestSource_FetchOrdersAndFilters(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Append("C1",
		source.Event{ID: "1700000002.000000", Text: "로고 깨짐", Thread: "T1"},
		source.Event{ID: "1700000001.000000", Text: "결제 버튼 안 눌림", Thread: "T1"},
		source.Event{ID: "1700000003.000000", Text: "other thread", Thread: "T2"},
		source.Event{ID: "1700000010.000000", Text: "버튼 에러남", Thread: "T1"},
	))
	ctx := context.Background()

	events, err := s.Fetch(ctx, source.FetchRequest{Channel: "C1", Thread: "T1"})
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, "1700000001.000000", events[0].ID)
	require.Equal(t, "C1", events[0].Channel)
	require.Equal(t, "1700000010.000000", events[2].ID)

	events, err = s.Fetch(ctx, source.FetchRequest{Channel: "C1", Thread: "T1", After: "1700000002.000000"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "버튼 에러남", events[0].Text)

	events, err = s.Fetch(ctx, source.FetchRequest{Channel: "C1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestSource_MissingChannel(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Fetch(context.Background(), source.FetchRequest{Channel: "nope"})
	require.True(t, errors.Is(err, source.ErrChannelNotFound))
}

func TestSource_MalformedLine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "C1.jsonl"), []byte("{\"id\":\"1\"}\n{oops\n"), 0o644))

	_, err := New(dir).Fetch(context.Background(), source.FetchRequest{Channel: "C1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "C1.jsonl:2")
}

func TestSource_RejectsPathChannel(t *testing.T) {
	_, err := New(t.TempDir()).Fetch(context.Background(), source.FetchRequest{Channel: "../etc"})
	require.Error(t, err)
}
