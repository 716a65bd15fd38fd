// Package clock abstracts time so the watch loop and retry backoff can be
// driven deterministically in tests.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock provides the current time and a cancellable sleep.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real returns the wall clock.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FakeClock is a manual clock. Sleep returns immediately after advancing
// the clock by d, so loops that sleep run without real delays.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	sleeps  []time.Duration

	// OnSleep, when set, runs after each Sleep advanced the clock. Tests
	// use it to cancel a context at a chosen point.
	OnSleep func(n int, d time.Duration)
}

// Fake returns a FakeClock starting at initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Sleep advances the clock by d unless ctx is already done.
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.sleeps = append(c.sleeps, d)
	n := len(c.sleeps)
	hook := c.OnSleep
	c.mu.Unlock()

	if hook != nil {
		hook(n, d)
	}
	return ctx.Err()
}

// Sleeps returns the durations passed to Sleep so far.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
