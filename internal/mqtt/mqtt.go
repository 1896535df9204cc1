// Package mqtt publishes booth session and lifecycle events, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/sweeney/photobooth/internal/logic"
)

// DefaultPrefix is the default topic prefix.
const DefaultPrefix = "photobooth"

// EventsTopic is the topic for session events under prefix.
func EventsTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/events"
}

// SystemTopic is the topic for lifecycle events under prefix.
func SystemTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/system"
}

// EventType names a session event.
type EventType string

const (
	EventSessionStarted  EventType = "SESSION_STARTED"
	EventCaptureFailed   EventType = "CAPTURE_FAILED"
	EventArtifactSaved   EventType = "ARTIFACT_SAVED"
	EventPersistFailed   EventType = "PERSIST_FAILED"
	EventPrintRequested  EventType = "PRINT_REQUESTED"
	EventTriggerRejected EventType = "TRIGGER_REJECTED"
)

// Event is a session event.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Mode      logic.Mode
	Path      string // artifact path, for ARTIFACT_SAVED and PRINT_REQUESTED
	Detail    string // button, error text or artifact kind
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a session event. It must not block on the network.
	Publish(event Event) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Photobooth EventPayload `json:"photobooth"`
}

// EventPayload contains the session event details. Paths are reduced to
// file names, matching the gallery URLs.
type EventPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Mode      string `json:"mode"`
	Path      string `json:"path,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// FormatPayload creates the JSON payload for a session event.
func FormatPayload(event Event) ([]byte, error) {
	path := ""
	if event.Path != "" {
		path = filepath.Base(event.Path)
	}
	payload := Payload{
		Photobooth: EventPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Mode:      string(event.Mode),
			Path:      path,
			Detail:    event.Detail,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
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
