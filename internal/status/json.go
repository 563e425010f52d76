package status

import (
	"time"

	"github.com/goccy/go-json"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Level         string            `json:"level"`
	Pressed       bool              `json:"pressed"`
	Ready         bool              `json:"ready"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	StartTime     string            `json:"start_time"`
	Timestamp     string            `json:"timestamp"`
	LastRing      *LastRingJSON     `json:"last_ring,omitempty"`
	Counts        CountsJSON        `json:"counts"`
	Window        WindowJSON        `json:"burst_window"`
	Notifications NotificationsJSON `json:"notifications"`
	Subscribers   int               `json:"subscribers"`
	MQTT          MQTTStatus        `json:"mqtt"`
	Config        ConfigJSON        `json:"config"`
}

// LastRingJSON describes the latest press.
type LastRingJSON struct {
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// CountsJSON is the JSON representation of engine totals.
type CountsJSON struct {
	Transitions     int `json:"transitions"`
	Rings           int `json:"rings"`
	RelaySuppressed int `json:"relay_suppressed"`
}

// WindowJSON is the current burst window.
type WindowJSON struct {
	Start string `json:"start,omitempty"`
	Count int    `json:"count"`
}

// NotificationsJSON is the JSON representation of dispatcher totals.
type NotificationsJSON struct {
	Runs       int `json:"runs"`
	Delivered  int `json:"delivered"`
	Gone       int `json:"gone"`
	Failed     int `json:"failed"`
	Suppressed int `json:"suppressed"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs         int64  `json:"poll_ms"`
	SettleMs       int64  `json:"settle_ms"`
	BurstThreshold int    `json:"burst_threshold"`
	BurstWindowMs  int64  `json:"burst_window_ms"`
	CooldownMs     int64  `json:"cooldown_ms"`
	CooldownMode   string `json:"cooldown_mode"`
	Store          string `json:"store"`
	HTTPAddr       string `json:"http_addr"`
	Mock           bool   `json:"mock"`
}

// LevelString returns the accepted level or UNKNOWN before the first sample.
func (s Snapshot) LevelString() string {
	if !s.Engine.Known {
		return "UNKNOWN"
	}
	return s.Engine.Level.String()
}

// Build converts a snapshot into its JSON form.
func Build(snap Snapshot) StatusInner {
	inner := StatusInner{
		Level:         snap.LevelString(),
		Pressed:       snap.Engine.Known && snap.Pressed,
		Ready:         snap.Engine.Known,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Counts: CountsJSON{
			Transitions:     snap.Engine.Counts.Transitions,
			Rings:           snap.Engine.Counts.Presses,
			RelaySuppressed: snap.Engine.Counts.Suppressed,
		},
		Window: WindowJSON{Count: snap.Engine.Window.Count},
		Notifications: NotificationsJSON{
			Runs:       snap.Notifications.Runs,
			Delivered:  snap.Notifications.Delivered,
			Gone:       snap.Notifications.Gone,
			Failed:     snap.Notifications.Failed,
			Suppressed: snap.Notifications.Suppressed,
		},
		Subscribers: snap.Subscribers,
		MQTT: MQTTStatus{
			Enabled:   snap.Config.Broker != "",
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
		},
		Config: ConfigJSON{
			PollMs:         snap.Config.PollMs,
			SettleMs:       snap.Config.SettleMs,
			BurstThreshold: snap.Config.BurstThreshold,
			BurstWindowMs:  snap.Config.BurstWindowMs,
			CooldownMs:     snap.Config.CooldownMs,
			CooldownMode:   snap.Config.CooldownMode,
			Store:          snap.Config.Store,
			HTTPAddr:       snap.Config.HTTPAddr,
			Mock:           snap.Config.Mock,
		},
	}
	if !snap.Engine.Window.Start.IsZero() {
		inner.Window.Start = snap.Engine.Window.Start.UTC().Format(time.RFC3339)
	}
	if !snap.LastRing.IsZero() {
		inner.LastRing = &LastRingJSON{
			Timestamp: snap.LastRing.UTC().Format(time.RFC3339),
			Source:    string(snap.LastRingSource),
		}
	}
	return inner
}

// FormatJSON returns the indented JSON status document.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: Build(snap)}, "", "  ")
	return data
}
