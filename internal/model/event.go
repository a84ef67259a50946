// Package model defines the data types shared across the advisory pipeline:
// events, queue entries, insights, episodes, steps, distillations, verdicts,
// advice decisions, and feedback entries. Types here are plain data — no
// component owns another component's struct, only its own persisted records,
// per the capability-bundle design (see internal/runtime).
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventKind is the closed set of hook invocations the daemon understands.
type EventKind string

const (
	KindPreTool          EventKind = "pre_tool"
	KindPostTool         EventKind = "post_tool"
	KindPostToolFailure  EventKind = "post_tool_failure"
	KindUserPrompt       EventKind = "user_prompt"
)

// Valid reports whether k is one of the closed set of event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindPreTool, KindPostTool, KindPostToolFailure, KindUserPrompt:
		return true
	}
	return false
}

// Event is an immutable record of one observed hook invocation. Events are
// created at ingest and never mutated afterward.
type Event struct {
	EventID   string            `json:"event_id"`
	SessionID string            `json:"session_id"`
	Kind      EventKind         `json:"kind"`
	Tool      string            `json:"tool,omitempty"`
	ToolArgs  map[string]any    `json:"tool_args,omitempty"`
	Text      string            `json:"text,omitempty"`
	TsNanos   int64             `json:"ts_ns"`
	Source    string            `json:"source,omitempty"`
	Importance float64          `json:"importance"`
}

// NewEventID generates a new, roughly time-ordered event identifier.
// A UUIDv7 leads with a millisecond timestamp, so IDs sort by creation
// time to the millisecond; finer ordering within a session is carried by
// TsNanos, which every consumer of Event sorts on rather than relying on
// ID lexical order.
func NewEventID() string {
	return "evt_" + uuid.Must(uuid.NewV7()).String()
}

// Stamp fills in EventID and TsNanos if they are unset, returning the event
// for chaining.
func (e *Event) Stamp(now time.Time) *Event {
	if e.EventID == "" {
		e.EventID = NewEventID()
	}
	if e.TsNanos == 0 {
		e.TsNanos = now.UnixNano()
	}
	return e
}
