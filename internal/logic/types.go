// Package logic contains the duty-cycle state machine of the feedback device.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time and the debounce settle wait are always injected.
package logic

import (
	"context"
	"time"
)

// NoButton marks DeviceState.LastButton when no press has been recorded.
const NoButton int8 = -1

// ButtonChannel pairs one input line with its indicator line and feedback label.
type ButtonChannel struct {
	Index     int
	Input     int // input line offset (pull-up, active LOW)
	Indicator int // indicator line offset
	Label     string
}

// DeviceState is the only state carried across a sleep transition.
type DeviceState struct {
	ActivePeriod bool `json:"active_period"`
	LastButton   int8 `json:"last_button"`
}

// ColdState returns the state of a device after a full power loss.
func ColdState() DeviceState {
	return DeviceState{LastButton: NoButton}
}

// PressEvent is a debounced button press.
type PressEvent struct {
	Channel int
	Time    time.Time // monotonic capture time
}

// WakeCause classifies why the process started.
type WakeCause string

const (
	WakeColdStart WakeCause = "COLD_START"
	WakeExternal  WakeCause = "EXTERNAL"
)

// Wake is the result of wake classification.
type Wake struct {
	Cause    WakeCause
	State    DeviceState
	Retained bool // State was read from retained storage
}

// Phase is a state of the active-period controller.
type Phase string

const (
	PhaseIdle               Phase = "IDLE"
	PhaseAwaitingFirstPress Phase = "AWAITING_FIRST_PRESS"
	PhaseActive             Phase = "ACTIVE"
	PhaseSleeping           Phase = "SLEEPING"
)

// Outcome is the terminal result of one publish attempt.
type Outcome string

const (
	OutcomeDelivered          Outcome = "DELIVERED"
	OutcomeNetworkUnavailable Outcome = "NETWORK_UNAVAILABLE"
	OutcomeBrokerUnavailable  Outcome = "BROKER_UNAVAILABLE"
	OutcomePublishRejected    Outcome = "PUBLISH_REJECTED"
)

// PublishResult reports one publish attempt.
// ClockSynced is false when the record was sent with an unknown time.
type PublishResult struct {
	Outcome     Outcome
	ClockSynced bool
	Err         error
}

// Capabilities selects which parts of the duty cycle are enabled.
type Capabilities struct {
	Sleep     bool
	Telemetry bool
}

// LineReader reads the button inputs.
type LineReader interface {
	// Len returns the number of monitored inputs.
	Len() int
	// Active reports whether input index is at its active (LOW) level.
	Active(index int) (bool, error)
}

// Indicators drives the indicator outputs.
type Indicators interface {
	SetIndicator(index int, on bool) error
}

// Publisher delivers a press to the remote collector.
type Publisher interface {
	Publish(ctx context.Context, press PressEvent) PublishResult
}

// Counts tracks per-session totals since process start.
type Counts struct {
	Presses            int
	Delivered          int
	NetworkUnavailable int
	BrokerUnavailable  int
	PublishRejected    int
	ClockUnsynced      int
	ReadErrors         int
}

// StepResult describes what one Start or Tick call did.
type StepResult struct {
	Press            *PressEvent
	Label            string
	Publish          *PublishResult
	IndicatorCleared bool
	IndicatorErr     error
	ActivePeriodEnd  bool
	Sleep            bool
}
