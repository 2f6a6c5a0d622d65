package domain

import "time"

// EventType names a fire-and-forget notification.
type EventType string

// Notification event types
const (
	EventTradeExecuted       EventType = "trade-executed"
	EventTradeRejected       EventType = "trade-rejected"
	EventGraduationReady     EventType = "graduation-ready"
	EventGraduationCompleted EventType = "graduation-completed"
)

// Event is a notification emitted by the engine. Payload is JSON-encodable.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TokenID   string    `json:"token_id"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}
