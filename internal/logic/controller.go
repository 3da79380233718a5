package logic

import (
	"context"
	"errors"
	"time"
)

// Default timings of the reference firmware.
const (
	DefaultIndicatorDuration = 7 * time.Second
	DefaultInactivityBudget  = 10 * time.Minute
)

// ControllerConfig holds the timing and capability settings of a Controller.
type ControllerConfig struct {
	IndicatorDuration time.Duration
	InactivityBudget  time.Duration
	Capabilities      Capabilities
}

// Controller is the active-period state machine. It decides when a press is
// accepted, when the indicator goes dark and when the device may sleep.
// Not safe for concurrent use; it is driven from a single poll loop.
type Controller struct {
	cfg        ControllerConfig
	scanner    *Scanner
	catalog    *Catalog
	indicators Indicators
	publisher  Publisher

	phase       Phase
	cause       WakeCause
	device      DeviceState
	activeSince time.Time

	ledOn      bool
	ledChannel int
	ledStart   time.Time

	counts Counts
}

// NewController creates a Controller in the Idle phase with cold device state.
// publisher may be nil when telemetry is disabled.
func NewController(cfg ControllerConfig, scanner *Scanner, catalog *Catalog, indicators Indicators, publisher Publisher) *Controller {
	return &Controller{
		cfg:        cfg,
		scanner:    scanner,
		catalog:    catalog,
		indicators: indicators,
		publisher:  publisher,
		phase:      PhaseIdle,
		cause:      WakeColdStart,
		device:     ColdState(),
	}
}

// Start runs the wake-time scan. Both wake causes scan once so a button held
// during power-up is honored. With no press, a retained active period resumes;
// otherwise the controller is Idle.
func (c *Controller) Start(ctx context.Context, wake Wake, now time.Time) StepResult {
	c.cause = wake.Cause
	c.device = wake.State
	c.phase = PhaseAwaitingFirstPress

	var res StepResult
	if press, ok := c.scanner.Scan(); ok {
		c.accept(ctx, press, now, &res)
		return res
	}

	if c.device.ActivePeriod {
		c.phase = PhaseActive
		c.activeSince = now
		return res
	}

	c.phase = PhaseIdle
	return res
}

// Tick evaluates the indicator and inactivity timers and scans for a new press.
// Once Sleep has been reported, further ticks do nothing.
func (c *Controller) Tick(ctx context.Context, now time.Time) StepResult {
	var res StepResult

	switch c.phase {
	case PhaseSleeping:
		return res
	case PhaseAwaitingFirstPress:
		c.phase = PhaseIdle
	}

	if c.phase == PhaseActive {
		if c.ledOn && now.Sub(c.ledStart) >= c.cfg.IndicatorDuration {
			res.IndicatorErr = c.clearIndicators()
			res.IndicatorCleared = true
		}

		if c.CheckInactivity(now) {
			res.ActivePeriodEnd = true
			res.Sleep = c.phase == PhaseSleeping
			return res
		}
	}

	if c.phase == PhaseIdle && c.cfg.Capabilities.Sleep {
		res.IndicatorErr = errors.Join(res.IndicatorErr, c.enterSleeping())
		res.Sleep = true
		return res
	}

	// A press is only accepted while no indicator is lit.
	if c.ledOn {
		return res
	}

	if press, ok := c.scanner.Scan(); ok {
		c.accept(ctx, press, now, &res)
	}
	return res
}

// CheckInactivity ends the active period once the inactivity budget has elapsed
// since the last accepted press. It returns true only on the call that performs
// the transition, so repeated checks never re-trigger sleep entry.
func (c *Controller) CheckInactivity(now time.Time) bool {
	if c.phase != PhaseActive {
		return false
	}
	if now.Sub(c.activeSince) < c.cfg.InactivityBudget {
		return false
	}

	c.device.ActivePeriod = false
	c.phase = PhaseIdle
	if c.cfg.Capabilities.Sleep {
		_ = c.enterSleeping()
	} else if c.ledOn {
		_ = c.clearIndicators()
	}
	return true
}

func (c *Controller) accept(ctx context.Context, press PressEvent, now time.Time, res *StepResult) {
	ch := c.catalog.Channel(press.Channel)

	c.device.LastButton = int8(ch.Index)
	c.device.ActivePeriod = true
	c.phase = PhaseActive
	c.activeSince = now
	c.counts.Presses++

	res.Press = &press
	res.Label = ch.Label

	// Light first so feedback is immediate whatever the publish does.
	res.IndicatorErr = c.indicators.SetIndicator(ch.Index, true)
	c.ledOn = true
	c.ledChannel = ch.Index
	c.ledStart = now

	if !c.cfg.Capabilities.Telemetry || c.publisher == nil {
		return
	}

	result := c.publisher.Publish(ctx, press)
	c.countOutcome(result)
	res.Publish = &result
}

func (c *Controller) countOutcome(r PublishResult) {
	switch r.Outcome {
	case OutcomeDelivered:
		c.counts.Delivered++
		if !r.ClockSynced {
			c.counts.ClockUnsynced++
		}
	case OutcomeNetworkUnavailable:
		c.counts.NetworkUnavailable++
	case OutcomeBrokerUnavailable:
		c.counts.BrokerUnavailable++
	case OutcomePublishRejected:
		c.counts.PublishRejected++
	}
}

func (c *Controller) enterSleeping() error {
	err := c.clearIndicators()
	c.device.ActivePeriod = false
	c.phase = PhaseSleeping
	return err
}

func (c *Controller) clearIndicators() error {
	var errs []error
	for i := 0; i < c.catalog.Len(); i++ {
		if err := c.indicators.SetIndicator(i, false); err != nil {
			errs = append(errs, err)
		}
	}
	c.ledOn = false
	return errors.Join(errs...)
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// Cause returns the wake cause passed to Start.
func (c *Controller) Cause() WakeCause {
	return c.cause
}

// Device returns the state to persist across sleep.
func (c *Controller) Device() DeviceState {
	return c.device
}

// Indicator returns the lit channel, if any.
func (c *Controller) Indicator() (int, bool) {
	return c.ledChannel, c.ledOn
}

// Counts returns a copy of the session counters.
func (c *Controller) Counts() Counts {
	counts := c.counts
	counts.ReadErrors = c.scanner.ReadErrors()
	return counts
}
