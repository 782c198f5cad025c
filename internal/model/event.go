// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventDiscoveryCompleted EventType = "DISCOVERY_COMPLETED"
	EventSessionOpened      EventType = "SESSION_OPENED"
	EventSessionClosed      EventType = "SESSION_CLOSED"
	EventEnrollStarted      EventType = "ENROLL_STARTED"
	EventEnrollStep         EventType = "ENROLL_STEP"
	EventEnrollCompleted    EventType = "ENROLL_COMPLETED"
	EventEnrollFailed       EventType = "ENROLL_FAILED"
	EventVerifyCompleted    EventType = "VERIFY_COMPLETED"
	EventPrintDeleted       EventType = "PRINT_DELETED"
)

// Severity levels
const (
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
)

// Event is pushed to websocket subscribers
type Event struct {
	ID        uuid.UUID  `json:"id"`
	Type      EventType  `json:"event_type"`
	SessionID string     `json:"session_id,omitempty"`
	Data      JSONObject `json:"data,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Severity  string     `json:"severity"`
}

// NewEvent stamps an event with a fresh id and the current time
func NewEvent(eventType EventType, sessionID string, severity string, data JSONObject) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now(),
		Severity:  severity,
	}
}
