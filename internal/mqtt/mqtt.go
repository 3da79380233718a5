// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"context"
	"encoding/json"
	"time"
)

// TopicPrefix is the root of every topic published by the device.
const TopicPrefix = "feedback"

// EventsTopic returns the topic for feedback records of deviceID.
func EventsTopic(deviceID string) string {
	return TopicPrefix + "/" + deviceID + "/events"
}

// SystemTopic returns the topic for lifecycle events of deviceID.
func SystemTopic(deviceID string) string {
	return TopicPrefix + "/" + deviceID + "/system"
}

// TimeLayout formats the local time of a record.
const TimeLayout = "2006-01-02 15:04:05"

// UnknownTime replaces the time string when the clock never synchronized.
const UnknownTime = "unknown time"

// Publisher publishes records to the collector.
type Publisher interface {
	// Connect establishes the session, or reuses it if already connected.
	Connect(ctx context.Context) error

	// PublishRecord sends a feedback record and waits for the broker acknowledgment.
	PublishRecord(rec Record) error

	// PublishSystem sends a lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Record is the payload of one feedback press. It is never mutated after construction.
type Record struct {
	Button    int    `json:"button"`
	Feedback  string `json:"feedback"`
	Timestamp int64  `json:"timestamp"`
	TimeStr   string `json:"time_str"`
	Timezone  string `json:"timezone"`
}

// NewRecord builds the record for a press on channel with label at wall-clock
// time wall. When synced is false the time string is UnknownTime.
func NewRecord(channel int, label string, wall time.Time, synced bool, loc *time.Location, tz string) Record {
	timeStr := UnknownTime
	if synced {
		timeStr = wall.In(loc).Format(TimeLayout)
	}
	return Record{
		Button:    channel,
		Feedback:  label,
		Timestamp: wall.Unix(),
		TimeStr:   timeStr,
		Timezone:  tz,
	}
}

// FormatRecord creates the JSON payload for a record.
func FormatRecord(rec Record) ([]byte, error) {
	return json.Marshal(rec)
}

// SystemEvent represents a lifecycle event (e.g., sleep, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "SLEEP", "SHUTDOWN", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "INACTIVITY"
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for simple system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
