// Package slack reads feedback threads through the Slack Web API.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rpggio/qasync/internal/domain/cursor"
	"github.com/rpggio/qasync/internal/source"
)

// DefaultBaseURL is the Slack Web API root.
const DefaultBaseURL = "https://slack.com/api"

const pageSize = 200

// Options configures the client.
type Options struct {
	Token   string
	BaseURL string
	// WorkspaceURL, e.g. "https://acme.slack.com", lets permalinks be built
	// locally instead of calling chat.getPermalink per message.
	WorkspaceURL  string
	RatePerSecond float64
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Client implements source.Source.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	mu    sync.Mutex
	users map[string]source.Author
}

// New creates a client. The token is required.
func New(opts Options) (*Client, error) {
	if opts.Token == "" {
		return nil, errors.New("slack: token is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 1
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		opts:    opts,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), 3),
		logger:  logger,
		users:   map[string]source.Author{},
	}, nil
}

type message struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
	User     string `json:"user"`
	BotID    string `json:"bot_id"`
	Text     string `json:"text"`
	Files    []struct {
		Name       string `json:"name"`
		URLPrivate string `json:"url_private"`
		Permalink  string `json:"permalink"`
	} `json:"files"`
}

type pageResponse struct {
	Messages         []message `json:"messages"`
	HasMore          bool      `json:"has_more"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// Fetch pages through a thread (req.Thread set) or a channel history and
// returns human messages after req.After, oldest first.
func (c *Client) Fetch(ctx context.Context, req source.FetchRequest) ([]source.Event, error) {
	method := "conversations.history"
	params := url.Values{}
	params.Set("channel", req.Channel)
	params.Set("limit", strconv.Itoa(pageSize))
	if req.Thread != "" {
		method = "conversations.replies"
		params.Set("ts", req.Thread)
	}
	if req.After != "" {
		params.Set("oldest", req.After)
	}

	var msgs []message
	for {
		var page pageResponse
		if err := c.call(ctx, method, params, &page); err != nil {
			return nil, err
		}
		msgs = append(msgs, page.Messages...)
		next := page.ResponseMetadata.NextCursor
		if !page.HasMore || next == "" {
			break
		}
		params.Set("cursor", next)
	}

	var events []source.Event
	for _, m := range msgs {
		if !isFeedback(m, req) {
			continue
		}
		ev, err := c.toEvent(ctx, m, req)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return cursor.Compare(events[i].ID, events[j].ID) < 0 })
	if req.Limit > 0 && len(events) > req.Limit {
		events = events[:req.Limit]
	}
	return events, nil
}

// isFeedback drops the thread parent, bot posts, and system messages such
// as joins and edits.
func isFeedback(m message, req source.FetchRequest) bool {
	if m.TS == "" || m.Subtype != "" || m.BotID != "" {
		return false
	}
	if req.Thread != "" && m.TS == req.Thread {
		return false
	}
	return cursor.Compare(m.TS, req.After) > 0
}

func (c *Client) toEvent(ctx context.Context, m message, req source.FetchRequest) (source.Event, error) {
	author, err := c.author(ctx, m.User)
	if err != nil {
		return source.Event{}, err
	}
	link, err := c.permalink(ctx, req.Channel, m)
	if err != nil {
		return source.Event{}, err
	}

	ev := source.Event{
		ID:        m.TS,
		Author:    author,
		Text:      m.Text,
		Permalink: link,
		Channel:   req.Channel,
		Thread:    m.ThreadTS,
		PostedAt:  tsTime(m.TS),
	}
	for _, f := range m.Files {
		switch {
		case f.Permalink != "":
			ev.Attachments = append(ev.Attachments, f.Permalink)
		case f.URLPrivate != "":
			ev.Attachments = append(ev.Attachments, f.URLPrivate)
		case f.Name != "":
			ev.Attachments = append(ev.Attachments, f.Name)
		}
	}
	return ev, nil
}

func (c *Client) author(ctx context.Context, userID string) (source.Author, error) {
	if userID == "" {
		return source.Author{}, nil
	}
	c.mu.Lock()
	a, ok := c.users[userID]
	c.mu.Unlock()
	if ok {
		return a, nil
	}

	var resp struct {
		User struct {
			Name    string `json:"name"`
			Profile struct {
				DisplayName string `json:"display_name"`
				RealName    string `json:"real_name"`
			} `json:"profile"`
		} `json:"user"`
	}
	params := url.Values{}
	params.Set("user", userID)
	if err := c.call(ctx, "users.info", params, &resp); err != nil {
		if source.IsTransient(err) {
			return source.Author{}, err
		}
		// Missing scopes or deleted users still yield an event.
		c.logger.Debug("slack user lookup failed", "user", userID, "error", err)
		return source.Author{Handle: userID}, nil
	}

	a = source.Author{DisplayName: resp.User.Profile.DisplayName, Handle: resp.User.Name}
	if a.DisplayName == "" {
		a.DisplayName = resp.User.Profile.RealName
	}
	if a.Handle == "" {
		a.Handle = userID
	}
	c.mu.Lock()
	c.users[userID] = a
	c.mu.Unlock()
	return a, nil
}

func (c *Client) permalink(ctx context.Context, channel string, m message) (string, error) {
	if c.opts.WorkspaceURL != "" {
		link := strings.TrimRight(c.opts.WorkspaceURL, "/") + "/archives/" + channel + "/p" + strings.ReplaceAll(m.TS, ".", "")
		if m.ThreadTS != "" && m.ThreadTS != m.TS {
			link += "?thread_ts=" + m.ThreadTS + "&cid=" + channel
		}
		return link, nil
	}

	var resp struct {
		Permalink string `json:"permalink"`
	}
	params := url.Values{}
	params.Set("channel", channel)
	params.Set("message_ts", m.TS)
	if err := c.call(ctx, "chat.getPermalink", params, &resp); err != nil {
		if source.IsTransient(err) {
			return "", err
		}
		c.logger.Debug("slack permalink lookup failed", "ts", m.TS, "error", err)
		return "", nil
	}
	return resp.Permalink, nil
}

// call invokes a Web API method. Rate limiting, server errors, and network
// failures are wrapped with source.ErrTransient.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := strings.TrimRight(c.opts.BaseURL, "/") + "/" + method + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", source.ErrTransient, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s returned %s (retry-after %s)", source.ErrTransient, method, resp.Status, resp.Header.Get("Retry-After"))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %v", source.ErrTransient, method, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned %s", method, resp.Status)
	}

	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !envelope.OK {
		switch envelope.Error {
		case "ratelimited", "internal_error", "fatal_error", "service_unavailable", "request_timeout":
			return fmt.Errorf("%w: %s: %s", source.ErrTransient, method, envelope.Error)
		case "channel_not_found", "thread_not_found", "not_in_channel":
			return fmt.Errorf("%w: %s: %s", source.ErrChannelNotFound, method, envelope.Error)
		}
		return fmt.Errorf("%s: %s", method, envelope.Error)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s payload: %w", method, err)
	}
	return nil
}

// tsTime converts a Slack timestamp ("1700000000.000100") to a time.
func tsTime(ts string) time.Time {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var micros int64
	if frac != "" {
		for len(frac) < 6 {
			frac += "0"
		}
		micros, _ = strconv.ParseInt(frac[:6], 10, 64)
	}
	return time.Unix(s, micros*1000).UTC()
}
