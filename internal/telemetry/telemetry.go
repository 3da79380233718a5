// Package telemetry delivers one feedback record per press through a bounded,
// staged sequence: wireless link, clock sync, collector session, publish.
// Every stage has its own retry ceiling so a dead access point or broker can
// never keep the device awake.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/feedback-buttons/internal/clock"
	"github.com/sweeney/feedback-buttons/internal/logic"
	"github.com/sweeney/feedback-buttons/internal/mqtt"
	"github.com/sweeney/feedback-buttons/internal/netlink"
)

// Failure taxonomy of the publish sequence.
var (
	ErrLinkUnavailable      = errors.New("wireless link unavailable")
	ErrClockUnsynced        = errors.New("clock not synchronized")
	ErrCollectorUnavailable = errors.New("collector unavailable")
	ErrPublishRejected      = errors.New("publish rejected")
)

// DefaultStageSlack is added to attempts*interval when a stage budget is not
// set. It covers the one blocking call (nmcli, NTP query) in flight when the
// last poll interval ends.
const DefaultStageSlack = 2 * time.Second

// Config bounds the publish stages.
type Config struct {
	LinkAttempts  int
	LinkInterval  time.Duration
	ClockAttempts int
	ClockInterval time.Duration
	ValidAfter    int64
	Location      *time.Location
	TimezoneLabel string

	// LinkBudget and ClockBudget cap the wall time of a stage including the
	// blocking calls made inside it. Zero derives the cap from the poll bounds.
	LinkBudget  time.Duration
	ClockBudget time.Duration
}

// DefaultConfig returns the reference bounds: 20 polls of 500 ms per stage,
// each stage capped at 12 s.
func DefaultConfig() Config {
	return Config{
		LinkAttempts:  20,
		LinkInterval:  500 * time.Millisecond,
		ClockAttempts: 20,
		ClockInterval: 500 * time.Millisecond,
		ValidAfter:    clock.DefaultValidAfter,
		Location:      time.UTC,
		TimezoneLabel: "UTC",
		LinkBudget:    12 * time.Second,
		ClockBudget:   12 * time.Second,
	}
}

// StageBudget is attempts*interval plus slack.
func StageBudget(attempts int, interval, slack time.Duration) time.Duration {
	return time.Duration(attempts)*interval + slack
}

func (c Config) linkBudget() time.Duration {
	if c.LinkBudget > 0 {
		return c.LinkBudget
	}
	return StageBudget(c.LinkAttempts, c.LinkInterval, DefaultStageSlack)
}

func (c Config) clockBudget() time.Duration {
	if c.ClockBudget > 0 {
		return c.ClockBudget
	}
	return StageBudget(c.ClockAttempts, c.ClockInterval, DefaultStageSlack)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithSleep replaces the wait between polls.
func WithSleep(s SleepFunc) Option {
	return func(p *Publisher) {
		p.sleep = s
	}
}

// Publisher implements logic.Publisher.
type Publisher struct {
	cfg     Config
	link    netlink.Link
	clock   clock.Clock
	session mqtt.Publisher
	catalog *logic.Catalog
	sleep   SleepFunc
	log     zerolog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(cfg Config, link netlink.Link, clk clock.Clock, session mqtt.Publisher, catalog *logic.Catalog, log zerolog.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		cfg:     cfg,
		link:    link,
		clock:   clk,
		session: session,
		catalog: catalog,
		sleep:   Sleep,
		log:     log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish runs the staged sequence once for press. It is never retried by the caller.
func (p *Publisher) Publish(ctx context.Context, press logic.PressEvent) logic.PublishResult {
	log := p.log.With().Int("button", press.Channel).Logger()

	if !p.bringUpLink(ctx, log) {
		err := fmt.Errorf("%w after %d polls", ErrLinkUnavailable, p.cfg.LinkAttempts)
		log.Warn().Err(err).Msg("skipping publish")
		return logic.PublishResult{Outcome: logic.OutcomeNetworkUnavailable, Err: err}
	}

	synced := p.syncClock(ctx)
	if !synced {
		log.Warn().Err(ErrClockUnsynced).Msg("publishing with unknown time")
	}

	if err := p.session.Connect(ctx); err != nil {
		err = fmt.Errorf("%w: %w", ErrCollectorUnavailable, err)
		log.Warn().Err(err).Msg("skipping publish")
		return logic.PublishResult{Outcome: logic.OutcomeBrokerUnavailable, ClockSynced: synced, Err: err}
	}

	rec := mqtt.NewRecord(press.Channel, p.catalog.Label(press.Channel), p.clock.Now(), synced, p.cfg.Location, p.cfg.TimezoneLabel)
	if err := p.session.PublishRecord(rec); err != nil {
		err = fmt.Errorf("%w: %w", ErrPublishRejected, err)
		log.Warn().Err(err).Msg("publish failed")
		return logic.PublishResult{Outcome: logic.OutcomePublishRejected, ClockSynced: synced, Err: err}
	}

	log.Info().Str("feedback", rec.Feedback).Str("time", rec.TimeStr).Msg("feedback delivered")
	return logic.PublishResult{Outcome: logic.OutcomeDelivered, ClockSynced: synced}
}

func (p *Publisher) bringUpLink(ctx context.Context, log zerolog.Logger) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.linkBudget())
	defer cancel()

	if err := p.link.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("link connect request failed")
	}
	return poll(ctx, p.cfg.LinkAttempts, p.cfg.LinkInterval, p.sleep, func() bool {
		return p.link.Connected(ctx)
	})
}

// syncClock requests a sync, then polls until the clock has synced and passes
// the validity threshold, re-requesting the sync on every miss.
func (p *Publisher) syncClock(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.clockBudget())
	defer cancel()

	if err := p.clock.Sync(ctx); err != nil {
		p.log.Debug().Err(err).Msg("clock sync request failed")
	}
	return poll(ctx, p.cfg.ClockAttempts, p.cfg.ClockInterval, p.sleep, func() bool {
		if p.clock.Synced() && clock.Valid(p.clock.Now(), p.cfg.ValidAfter) {
			return true
		}
		if err := p.clock.Sync(ctx); err != nil {
			p.log.Debug().Err(err).Msg("clock sync request failed")
		}
		return false
	})
}

// poll checks cond, then up to attempts more times with interval between checks.
// It sleeps at most attempts*interval; the time spent in cond is bounded by
// the caller's context.
func poll(ctx context.Context, attempts int, interval time.Duration, sleep SleepFunc, cond func() bool) bool {
	for i := 0; ; i++ {
		if cond() {
			return true
		}
		if i >= attempts {
			return false
		}
		if err := sleep(ctx, interval); err != nil {
			return false
		}
	}
}
