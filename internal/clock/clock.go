// Package clock provides network-synchronized wall-clock time.
package clock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/beevik/ntp"
)

// DefaultValidAfter is the epoch second below which the clock counts as not yet set.
const DefaultValidAfter int64 = 100000

// Clock is the clock-sync boundary.
type Clock interface {
	// Sync requests synchronization with network time.
	Sync(ctx context.Context) error

	// Now returns the current wall-clock time.
	Now() time.Time

	// Synced reports whether Now reflects network time. An RTC-backed
	// system clock can look valid without ever having synced.
	Synced() bool
}

// Valid reports whether t is past the "clock not yet set" threshold.
func Valid(t time.Time, validAfter int64) bool {
	return t.Unix() >= validAfter
}

// QueryFunc queries an NTP server.
type QueryFunc func(host string, opts ntp.QueryOptions) (*ntp.Response, error)

// NTPClock corrects the system clock by the offset measured against an NTP server.
// The system clock itself is never adjusted.
type NTPClock struct {
	server  string
	timeout time.Duration
	query   QueryFunc
	now     func() time.Time

	mu     sync.Mutex
	offset time.Duration
	synced bool
}

// Option configures an NTPClock.
type Option func(*NTPClock)

// WithQuery replaces the NTP query.
func WithQuery(q QueryFunc) Option {
	return func(c *NTPClock) { c.query = q }
}

// WithNow replaces the system clock.
func WithNow(now func() time.Time) Option {
	return func(c *NTPClock) { c.now = now }
}

// NewNTPClock creates a clock that synchronizes against server.
func NewNTPClock(server string, timeout time.Duration, opts ...Option) *NTPClock {
	c := &NTPClock{
		server:  server,
		timeout: timeout,
		query:   ntp.QueryWithOptions,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync measures the clock offset. The query is bounded by the configured
// timeout or the context deadline, whichever is sooner.
func (c *NTPClock) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	resp, err := c.query(c.server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return fmt.Errorf("ntp query %s: %w", c.server, err)
	}
	if err := resp.Validate(); err != nil {
		return fmt.Errorf("ntp response from %s: %w", c.server, err)
	}

	c.mu.Lock()
	c.offset = resp.ClockOffset
	c.synced = true
	c.mu.Unlock()
	return nil
}

// Now returns the system time corrected by the last measured offset.
func (c *NTPClock) Now() time.Time {
	c.mu.Lock()
	offset := c.offset
	c.mu.Unlock()
	return c.now().Add(offset)
}

// Synced reports whether at least one Sync succeeded.
func (c *NTPClock) Synced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synced
}
