package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	DeviceID      string       `json:"device_id"`
	Phase         string       `json:"phase"`
	WakeCause     string       `json:"wake_cause"`
	ActivePeriod  bool         `json:"active_period"`
	LastButton    int8         `json:"last_button"`
	Indicator     *int         `json:"indicator,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of session counts.
type CountsJSON struct {
	Presses            int `json:"presses"`
	Delivered          int `json:"delivered"`
	NetworkUnavailable int `json:"network_unavailable"`
	BrokerUnavailable  int `json:"broker_unavailable"`
	PublishRejected    int `json:"publish_rejected"`
	ClockUnsynced      int `json:"clock_unsynced"`
	ReadErrors         int `json:"read_errors"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs       int64  `json:"poll_ms"`
	SettleMs     int64  `json:"settle_ms"`
	IndicatorMs  int64  `json:"indicator_ms"`
	InactivityMs int64  `json:"inactivity_ms"`
	Sleep        bool   `json:"sleep"`
	Telemetry    bool   `json:"telemetry"`
	Broker       string `json:"broker"`
	HTTPPort     string `json:"http_port,omitempty"`
	Timezone     string `json:"timezone"`
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		DeviceID:      snap.Config.DeviceID,
		Phase:         orUnknown(string(snap.Phase)),
		WakeCause:     orUnknown(string(snap.WakeCause)),
		ActivePeriod:  snap.Device.ActivePeriod,
		LastButton:    snap.Device.LastButton,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Presses:            snap.Counts.Presses,
			Delivered:          snap.Counts.Delivered,
			NetworkUnavailable: snap.Counts.NetworkUnavailable,
			BrokerUnavailable:  snap.Counts.BrokerUnavailable,
			PublishRejected:    snap.Counts.PublishRejected,
			ClockUnsynced:      snap.Counts.ClockUnsynced,
			ReadErrors:         snap.Counts.ReadErrors,
		},
		Config: ConfigJSON{
			PollMs:       snap.Config.PollMs,
			SettleMs:     snap.Config.SettleMs,
			IndicatorMs:  snap.Config.IndicatorMs,
			InactivityMs: snap.Config.InactivityMs,
			Sleep:        snap.Config.Sleep,
			Telemetry:    snap.Config.Telemetry,
			Broker:       snap.Config.Broker,
			HTTPPort:     snap.Config.HTTPPort,
			Timezone:     snap.Config.Timezone,
		},
	}
	if snap.Indicator >= 0 {
		ch := snap.Indicator
		inner.Indicator = &ch
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
