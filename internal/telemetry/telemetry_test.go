package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/feedback-buttons/internal/clock"
	"github.com/sweeney/feedback-buttons/internal/logic"
	"github.com/sweeney/feedback-buttons/internal/mqtt"
	"github.com/sweeney/feedback-buttons/internal/netlink"
)

var wall = time.Unix(1_700_000_000, 0)

type fixture struct {
	link    *netlink.FakeLink
	clock   *clock.FakeClock
	session *mqtt.FakePublisher
	slept   time.Duration
	sleeps  int
	pub     *Publisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog, err := logic.NewCatalog(logic.DefaultChannels)
	require.NoError(t, err)

	f := &fixture{
		link:    &netlink.FakeLink{},
		clock:   &clock.FakeClock{Unset: time.Unix(0, 0), Time: wall, SyncAfter: 1},
		session: mqtt.NewFakePublisher(),
	}
	fakeSleep := func(_ context.Context, d time.Duration) error {
		f.slept += d
		f.sleeps++
		return nil
	}
	f.pub = NewPublisher(DefaultConfig(), f.link, f.clock, f.session, catalog, zerolog.Nop(), WithSleep(fakeSleep))
	return f
}

func press(ch int) logic.PressEvent {
	return logic.PressEvent{Channel: ch, Time: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestPublishDelivered(t *testing.T) {
	f := newFixture(t)
	f.link.UpAfter = 3

	res := f.pub.Publish(context.Background(), press(1))

	assert.Equal(t, logic.OutcomeDelivered, res.Outcome)
	assert.True(t, res.ClockSynced)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, f.link.ConnectCalls)
	assert.Equal(t, 3*500*time.Millisecond, f.slept)

	require.Len(t, f.session.Records, 1)
	rec := f.session.Records[0]
	assert.Equal(t, 1, rec.Button)
	assert.Equal(t, "good feedback", rec.Feedback)
	assert.Equal(t, int64(1700000000), rec.Timestamp)
	assert.Equal(t, "2023-11-14 22:13:20", rec.TimeStr)
	assert.Equal(t, "UTC", rec.Timezone)
}

func TestPublishNetworkUnavailableIsBounded(t *testing.T) {
	f := newFixture(t)
	f.link.UpAfter = -1
	f.link.ConnectError = errors.New("no such network")

	res := f.pub.Publish(context.Background(), press(0))

	assert.Equal(t, logic.OutcomeNetworkUnavailable, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrLinkUnavailable)
	assert.LessOrEqual(t, f.slept, 10500*time.Millisecond)
	assert.Equal(t, 20, f.sleeps)
	assert.Equal(t, 21, f.link.Polls)

	assert.Zero(t, f.clock.SyncCalls, "no later stage runs")
	assert.Zero(t, f.session.ConnectCalls)
	assert.Empty(t, f.session.Records)
}

func TestPublishUnsyncedClockStillDelivers(t *testing.T) {
	f := newFixture(t)
	f.clock.SyncAfter = -1
	f.clock.SyncError = errors.New("ntp timeout")

	res := f.pub.Publish(context.Background(), press(2))

	assert.Equal(t, logic.OutcomeDelivered, res.Outcome)
	assert.False(t, res.ClockSynced)
	assert.NoError(t, res.Err)
	assert.Equal(t, 20, f.sleeps, "clock stage is bounded")
	assert.Equal(t, 22, f.clock.SyncCalls, "one initial request plus one per miss")

	require.Len(t, f.session.Records, 1)
	assert.Equal(t, mqtt.UnknownTime, f.session.Records[0].TimeStr)
	assert.Equal(t, "bad feedback", f.session.Records[0].Feedback)
}

func TestPublishBrokerUnavailable(t *testing.T) {
	f := newFixture(t)
	f.session.ConnectError = errors.New("connection refused")

	res := f.pub.Publish(context.Background(), press(0))

	assert.Equal(t, logic.OutcomeBrokerUnavailable, res.Outcome)
	assert.True(t, res.ClockSynced)
	assert.ErrorIs(t, res.Err, ErrCollectorUnavailable)
	assert.Empty(t, f.session.Records)
}

func TestPublishRejected(t *testing.T) {
	f := newFixture(t)
	f.session.PublishError = errors.New("publish timeout")

	res := f.pub.Publish(context.Background(), press(3))

	assert.Equal(t, logic.OutcomePublishRejected, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrPublishRejected)
	assert.Contains(t, res.Err.Error(), "publish timeout")
}

func TestPublishReusesSession(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		res := f.pub.Publish(context.Background(), press(i))
		require.Equal(t, logic.OutcomeDelivered, res.Outcome)
	}
	assert.Equal(t, 1, f.session.ConnectCalls)
	assert.Len(t, f.session.Records, 3)
}

func TestPublishCancelledContextStopsPolling(t *testing.T) {
	catalog, err := logic.NewCatalog(logic.DefaultChannels)
	require.NoError(t, err)

	link := &netlink.FakeLink{UpAfter: -1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPublisher(DefaultConfig(), link, &clock.FakeClock{}, mqtt.NewFakePublisher(), catalog, zerolog.Nop())
	start := time.Now()
	res := p.Publish(ctx, press(0))

	assert.Equal(t, logic.OutcomeNetworkUnavailable, res.Outcome)
	assert.Equal(t, 1, link.Polls)
	assert.Less(t, time.Since(start), time.Second)
}

// stuckNMCLI never returns until its context ends.
func stuckNMCLI(ctx context.Context, _ string, _ ...string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestPublishStuckNMCLIIsBounded(t *testing.T) {
	catalog, err := logic.NewCatalog(logic.DefaultChannels)
	require.NoError(t, err)

	link := netlink.NewNMCLILink("IoT", "", "", 20*time.Millisecond, stuckNMCLI, zerolog.Nop())
	session := mqtt.NewFakePublisher()
	p := NewPublisher(DefaultConfig(), link, &clock.FakeClock{}, session, catalog, zerolog.Nop(), WithSleep(noSleep))

	start := time.Now()
	res := p.Publish(context.Background(), press(0))

	assert.Equal(t, logic.OutcomeNetworkUnavailable, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrLinkUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Zero(t, session.ConnectCalls)
}

func TestPublishLinkBudgetCapsSlowCommands(t *testing.T) {
	catalog, err := logic.NewCatalog(logic.DefaultChannels)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.LinkBudget = 100 * time.Millisecond
	link := netlink.NewNMCLILink("IoT", "", "", time.Minute, stuckNMCLI, zerolog.Nop())
	p := NewPublisher(cfg, link, &clock.FakeClock{}, mqtt.NewFakePublisher(), catalog, zerolog.Nop())

	start := time.Now()
	res := p.Publish(context.Background(), press(0))

	assert.Equal(t, logic.OutcomeNetworkUnavailable, res.Outcome)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPublishUnsyncedRTCTimeIsUnknown(t *testing.T) {
	catalog, err := logic.NewCatalog(logic.DefaultChannels)
	require.NoError(t, err)

	queries := 0
	clk := clock.NewNTPClock("pool.ntp.org", time.Second, clock.WithQuery(func(string, ntp.QueryOptions) (*ntp.Response, error) {
		queries++
		return nil, errors.New("network unreachable")
	}))
	session := mqtt.NewFakePublisher()
	p := NewPublisher(DefaultConfig(), &netlink.FakeLink{}, clk, session, catalog, zerolog.Nop(), WithSleep(noSleep))

	res := p.Publish(context.Background(), press(2))

	assert.Equal(t, logic.OutcomeDelivered, res.Outcome)
	assert.False(t, res.ClockSynced)
	assert.Equal(t, 22, queries)
	require.Len(t, session.Records, 1)
	assert.Equal(t, mqtt.UnknownTime, session.Records[0].TimeStr)
}

func TestPublishClockBudgetCapsSlowQueries(t *testing.T) {
	catalog, err := logic.NewCatalog(logic.DefaultChannels)
	require.NoError(t, err)

	clk := clock.NewNTPClock("pool.ntp.org", 2*time.Second, clock.WithQuery(func(_ string, opts ntp.QueryOptions) (*ntp.Response, error) {
		time.Sleep(opts.Timeout)
		return nil, errors.New("i/o timeout")
	}))
	cfg := DefaultConfig()
	cfg.ClockBudget = 200 * time.Millisecond
	session := mqtt.NewFakePublisher()
	p := NewPublisher(cfg, &netlink.FakeLink{}, clk, session, catalog, zerolog.Nop())

	start := time.Now()
	res := p.Publish(context.Background(), press(3))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, logic.OutcomeDelivered, res.Outcome)
	assert.False(t, res.ClockSynced)
	require.Len(t, session.Records, 1)
	assert.Equal(t, mqtt.UnknownTime, session.Records[0].TimeStr)
}

func TestStageBudgets(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 12*time.Second, cfg.linkBudget())
	assert.Equal(t, 12*time.Second, cfg.clockBudget())

	cfg.LinkBudget, cfg.ClockBudget = 0, 0
	cfg.ClockAttempts = 4
	assert.Equal(t, 12*time.Second, cfg.linkBudget())
	assert.Equal(t, 4*time.Second, cfg.clockBudget())
}

func TestPollCounts(t *testing.T) {
	var sleeps int
	sleep := func(context.Context, time.Duration) error { sleeps++; return nil }

	checks := 0
	ok := poll(context.Background(), 5, time.Millisecond, sleep, func() bool {
		checks++
		return checks == 3
	})
	assert.True(t, ok)
	assert.Equal(t, 2, sleeps)

	sleeps, checks = 0, 0
	ok = poll(context.Background(), 0, time.Millisecond, sleep, func() bool { checks++; return false })
	assert.False(t, ok)
	assert.Equal(t, 1, checks)
	assert.Zero(t, sleeps)
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
