// Package source defines the feedback event source contract.
package source

import (
	"context"
	"errors"
	"time"
)

// ErrTransient marks a fetch failure worth retrying.
var ErrTransient = errors.New("transient source error")

// ErrChannelNotFound is returned for an unknown channel or thread.
var ErrChannelNotFound = errors.New("channel not found")

// Author identifies who posted an event.
type Author struct {
	DisplayName string `json:"display_name"`
	Handle      string `json:"handle"`
}

// Event is one inbound feedback message.
type Event struct {
	ID          string    `json:"id"`
	Author      Author    `json:"author"`
	Text        string    `json:"text"`
	Attachments []string  `json:"attachments,omitempty"`
	Permalink   string    `json:"permalink,omitempty"`
	Channel     string    `json:"channel"`
	Thread      string    `json:"thread,omitempty"`
	PostedAt    time.Time `json:"posted_at"`
}

// FetchRequest selects events. After is an exclusive lower bound on event
// ids; empty fetches from the beginning. Limit zero means no limit.
type FetchRequest struct {
	Channel string
	Thread  string
	After   string
	Limit   int
}

// Source returns events in ascending id order.
type Source interface {
	Fetch(ctx context.Context, req FetchRequest) ([]Event, error)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
