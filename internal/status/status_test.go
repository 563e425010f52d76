package status

import (
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/sweeney/doorbell/internal/gpio"
	"github.com/sweeney/doorbell/internal/logic"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{PollMs: 20, SettleMs: 50, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.SettleMs != 50 {
		t.Errorf("Config.SettleMs: got %d, want 50", snap.Config.SettleMs)
	}
	if snap.Engine.Known {
		t.Error("expected unknown level initially")
	}
	if snap.LevelString() != "UNKNOWN" {
		t.Errorf("LevelString: got %q, want UNKNOWN", snap.LevelString())
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestSetEngineAndRecordRing(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	tr.SetEngine(logic.State{Level: gpio.Low, Known: true, Counts: logic.Counts{Transitions: 4, Presses: 2}}, true)
	tr.RecordRing(logic.Transition{Time: at, Source: logic.SourceRemote})

	snap := tr.Snapshot()
	if snap.LevelString() != "LOW" {
		t.Errorf("LevelString: got %q, want LOW", snap.LevelString())
	}
	if !snap.Pressed {
		t.Error("expected Pressed=true")
	}
	if snap.Engine.Counts.Presses != 2 {
		t.Errorf("Presses: got %d, want 2", snap.Engine.Counts.Presses)
	}
	if !snap.LastRing.Equal(at) || snap.LastRingSource != logic.SourceRemote {
		t.Errorf("last ring: got %v from %q", snap.LastRing, snap.LastRingSource)
	}
}

func TestAddNotifications(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.AddNotifications(2, 1, 0)
	tr.AddNotifications(1, 0, 3)
	tr.SetSuppressedNotifications(5)
	tr.SetSuppressedNotifications(4) // a late, stale report

	n := tr.Snapshot().Notifications
	want := Notifications{Runs: 2, Delivered: 3, Gone: 1, Failed: 3, Suppressed: 5}
	if n != want {
		t.Errorf("Notifications: got %+v, want %+v", n, want)
	}
}

func TestTaskRecordsMatchingTransitions(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	reg := logic.NewRegistry()
	reg.Add(tr.Task(logic.Falling))

	at := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	reg.Dispatch(logic.Transition{Level: gpio.High, Time: at.Add(-time.Second)})
	reg.Dispatch(logic.Transition{Level: gpio.Low, Time: at, Source: logic.SourceHardware})
	reg.Dispatch(logic.Transition{Level: gpio.High, Time: at.Add(time.Second)})

	if got := tr.Snapshot().LastRing; !got.Equal(at) {
		t.Errorf("LastRing: got %v, want %v", got, at)
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, Config{})
	tr.now = func() time.Time { return start.Add(90 * time.Second) }

	if got := tr.Snapshot().Uptime(); got != 90*time.Second {
		t.Errorf("Uptime: got %v, want 90s", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			tr.SetEngine(logic.State{Known: true}, false)
		}()
		go func() {
			defer wg.Done()
			tr.AddNotifications(1, 0, 0)
		}()
		go func() {
			defer wg.Done()
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()

	if got := tr.Snapshot().Notifications.Delivered; got != 10 {
		t.Errorf("Delivered: got %d, want 10", got)
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, Config{PollMs: 20, BurstThreshold: 15, CooldownMode: "extend", Store: "memory"})
	tr.now = func() time.Time { return start.Add(time.Hour) }
	tr.SetEngine(logic.State{
		Level:  gpio.High,
		Known:  true,
		Window: logic.BurstWindow{Start: start, Count: 3},
		Counts: logic.Counts{Transitions: 3, Presses: 1, Suppressed: 0},
	}, false)
	tr.RecordRing(logic.Transition{Time: start.Add(time.Minute), Source: logic.SourceHardware})
	tr.AddNotifications(2, 0, 1)

	var doc StatusJSON
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	s := doc.Status

	if s.Level != "HIGH" || s.Pressed || !s.Ready {
		t.Errorf("level fields: %+v", s)
	}
	if s.UptimeSeconds != 3600 {
		t.Errorf("UptimeSeconds: got %d, want 3600", s.UptimeSeconds)
	}
	if s.LastRing == nil || s.LastRing.Timestamp != "2026-01-01T00:01:00Z" || s.LastRing.Source != "hardware" {
		t.Errorf("LastRing: got %+v", s.LastRing)
	}
	if s.Counts.Rings != 1 || s.Window.Count != 3 || s.Window.Start != "2026-01-01T00:00:00Z" {
		t.Errorf("counts/window: %+v %+v", s.Counts, s.Window)
	}
	if s.Notifications.Delivered != 2 || s.Notifications.Failed != 1 || s.Notifications.Runs != 1 {
		t.Errorf("Notifications: %+v", s.Notifications)
	}
	if s.MQTT.Enabled {
		t.Error("MQTT should be disabled without a broker")
	}
	if s.Config.BurstThreshold != 15 || s.Config.Store != "memory" {
		t.Errorf("Config: %+v", s.Config)
	}
}

func TestFormatJSONOmitsLastRingBeforeFirstPress(t *testing.T) {
	var doc map[string]map[string]any
	if err := json.Unmarshal(FormatJSON(Snapshot{}), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := doc["status"]["last_ring"]; ok {
		t.Error("last_ring present before any ring")
	}
	if doc["status"]["level"] != "UNKNOWN" {
		t.Errorf("level: got %v", doc["status"]["level"])
	}
}
