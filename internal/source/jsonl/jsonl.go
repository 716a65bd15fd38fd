// Package jsonl reads feedback events from newline-delimited JSON files,
// one file per channel. It backs demos, exports, and offline replays.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rpggio/qasync/internal/domain/cursor"
	"github.com/rpggio/qasync/internal/source"
)

// Source implements source.Source over <Dir>/<channel>.jsonl.
type Source struct {
	Dir string
}

// New creates a Source rooted at dir.
func New(dir string) *Source {
	return &Source{Dir: dir}
}

// Fetch reads the channel file and returns the events after req.After.
func (s *Source) Fetch(ctx context.Context, req source.FetchRequest) ([]source.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Channel == "" || strings.ContainsAny(req.Channel, `/\`) {
		return nil, fmt.Errorf("invalid channel %q", req.Channel)
	}

	path := filepath.Join(s.Dir, req.Channel+".jsonl")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", source.ErrChannelNotFound, req.Channel)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", source.ErrTransient, path, err)
	}

	var events []source.Event
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var ev source.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if ev.ID == "" {
			return nil, fmt.Errorf("%s:%d: event has no id", path, line)
		}
		if ev.Channel == "" {
			ev.Channel = req.Channel
		}
		if req.Thread != "" && ev.Thread != req.Thread {
			continue
		}
		if cursor.Compare(ev.ID, req.After) <= 0 {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}

	sort.SliceStable(events, func(i, j int) bool { return cursor.Compare(events[i].ID, events[j].ID) < 0 })
	if req.Limit > 0 && len(events) > req.Limit {
		events = events[:req.Limit]
	}
	return events, nil
}

// Append writes events to the end of a channel file, creating it as needed.
func (s *Source) Append(channel string, events ...source.Event) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating source directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(s.Dir, channel+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening channel file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	for _, ev := range events {
		if ev.Channel == "" {
			ev.Channel = channel
		}
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("writing event %s: %w", ev.ID, err)
		}
	}
	return f.Sync()
}
