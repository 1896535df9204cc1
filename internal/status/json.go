package status

import (
	"encoding/json"
	"path/filepath"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string        `json:"event,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	Mode           string        `json:"mode"`
	Kind           string        `json:"kind,omitempty"`
	View           string        `json:"view"`
	CountdownUntil string        `json:"countdown_until,omitempty"`
	FlashOn        bool          `json:"flash_on"`
	Buffered       int           `json:"buffered_frames"`
	Closing        bool          `json:"closing"`
	UptimeSeconds  int64         `json:"uptime_seconds"`
	StartTime      string        `json:"start_time"`
	Timestamp      string        `json:"timestamp"`
	MQTT           MQTTStatus    `json:"mqtt"`
	Counts         CountsJSON    `json:"counts"`
	LastArtifact   *ArtifactJSON `json:"last_artifact,omitempty"`
	Config         ConfigJSON    `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of session and output counters.
type CountsJSON struct {
	Photos         int `json:"photos"`
	Bursts         int `json:"bursts"`
	Rejected       int `json:"rejected"`
	CaptureErrors  int `json:"capture_errors"`
	PrintRequests  int `json:"print_requests"`
	Saved          int `json:"saved"`
	PersistFailed  int `json:"persist_failed"`
	PrintSubmitted int `json:"print_submitted"`
	PrintSkipped   int `json:"print_skipped"`
	PrintFailed    int `json:"print_failed"`
}

// ArtifactJSON names files by base name, as served under /image and /thumb.
type ArtifactJSON struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Poster    string `json:"poster,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	CountdownMs int64  `json:"countdown_ms"`
	GIFFrames   int    `json:"gif_frames"`
	GIFFPS      int    `json:"gif_fps"`
	GIFPauseMs  int64  `json:"gif_pause_ms"`
	DisplayMs   int64  `json:"display_ms"`
	BounceMs    int64  `json:"bounce_ms"`
	Camera      string `json:"camera"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	ImageDir    string `json:"image_dir"`
}

func base(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

func buildInner(snap Snapshot) StatusInner {
	mode := string(snap.Session.Mode)
	if mode == "" {
		mode = "UNKNOWN"
	}
	c := snap.Session.Counts
	o := snap.Outputs

	inner := StatusInner{
		Mode:          mode,
		Kind:          string(snap.Session.Kind),
		View:          string(snap.View),
		FlashOn:       snap.Session.FlashOn,
		Buffered:      snap.Session.Buffered,
		Closing:       snap.Session.Closing,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Photos:         c.Photos,
			Bursts:         c.Bursts,
			Rejected:       c.Rejected,
			CaptureErrors:  c.CaptureErrors,
			PrintRequests:  c.Prints,
			Saved:          o.Saved,
			PersistFailed:  o.PersistFailed,
			PrintSubmitted: o.PrintSubmitted,
			PrintSkipped:   o.PrintSkipped,
			PrintFailed:    o.PrintFailed,
		},
		Config: ConfigJSON{
			CountdownMs: snap.Config.CountdownMs,
			GIFFrames:   snap.Config.GIFFrames,
			GIFFPS:      snap.Config.GIFFPS,
			GIFPauseMs:  snap.Config.GIFPauseMs,
			DisplayMs:   snap.Config.DisplayMs,
			BounceMs:    snap.Config.BounceMs,
			Camera:      snap.Config.Camera,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			ImageDir:    snap.Config.ImageDir,
		},
	}
	if !snap.CountdownUntil.IsZero() {
		inner.CountdownUntil = snap.CountdownUntil.UTC().Format(time.RFC3339Nano)
	}
	if a := snap.LastArtifact; a != nil {
		inner.LastArtifact = &ArtifactJSON{
			Kind:      string(a.Kind),
			Name:      base(a.Path),
			Poster:    base(a.Poster),
			Thumbnail: base(a.Thumbnail),
			CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
