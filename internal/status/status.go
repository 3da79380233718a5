// Package status provides a thread-safe status tracker for the feedback-buttons daemon.
// It is read by the HTTP handler and by the SLEEP and SHUTDOWN system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/feedback-buttons/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/netlink from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	DeviceID     string
	PollMs       int64
	SettleMs     int64
	IndicatorMs  int64
	InactivityMs int64
	Sleep        bool
	Telemetry    bool
	Broker       string
	HTTPPort     string
	Timezone     string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Phase         logic.Phase
	WakeCause     logic.WakeCause
	Device        logic.DeviceState
	Indicator     int // lit channel, or -1
	Counts        logic.Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Device:    logic.ColdState(),
			Indicator: -1,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetWake records the wake cause of this process start.
func (t *Tracker) SetWake(cause logic.WakeCause) {
	t.mu.Lock()
	t.snap.WakeCause = cause
	t.mu.Unlock()
}

// Update sets the controller phase, retained state, lit indicator and counts.
// Called from runLoop on every tick.
func (t *Tracker) Update(phase logic.Phase, device logic.DeviceState, indicator int, lit bool, counts logic.Counts) {
	if !lit {
		indicator = -1
	}
	t.mu.Lock()
	t.snap.Phase = phase
	t.snap.Device = device
	t.snap.Indicator = indicator
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
