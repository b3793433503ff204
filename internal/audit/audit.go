package audit

import (
	"context"
	"time"
)

type EventType string

const (
	EventToolUse  EventType = "tool_use"
	EventSecurity EventType = "security_event"
	EventAPICall  EventType = "api_call"
)

// Event is append-only from the caller's perspective: it is handed to a
// Publisher once and never read back through this package.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Subject   string         `json:"subject"`
	Type      EventType      `json:"type"`
	Status    string         `json:"status"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Publisher delivers events to an external sink. Implementations must be
// fire-and-forget: a sink failure never fails the operation being audited.
type Publisher interface {
	Emit(ctx context.Context, event Event)
}
