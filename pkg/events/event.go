package events

import "time"

const (
	TypeTelemetryCapture = "telemetry.capture"
	TypeTelemetryUpdate  = "telemetry.update"
	TypeTelemetryExit    = "telemetry.exit"
	TypeSessionStatus    = "session.status"
)

// Event defines the contract for everything relayed off-process.
type Event interface {
	// EventType returns the dotted subject suffix (e.g. "telemetry.capture").
	EventType() string

	Payload() map[string]interface{}

	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Telemetry builds the event for one published rolling log. reason is
// "capture", "update" or "exit".
func Telemetry(reason, text string, rows int, at time.Time) BaseEvent {
	return BaseEvent{
		Type: "telemetry." + reason,
		Data: map[string]interface{}{
			"reason":      reason,
			"rows":        rows,
			"rolling_log": text,
			"at":          at.UTC().Format(time.RFC3339Nano),
		},
		OccurredAt: at,
	}
}

// SessionStatus builds the event for an AI session status transition.
func SessionStatus(status, detail string, at time.Time) BaseEvent {
	return BaseEvent{
		Type: TypeSessionStatus,
		Data: map[string]interface{}{
			"status": status,
			"detail": detail,
			"at":     at.UTC().Format(time.RFC3339Nano),
		},
		OccurredAt: at,
	}
}
