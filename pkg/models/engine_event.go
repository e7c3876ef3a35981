package models

import (
	"encoding/json"
	"time"
)

// EngineEvent is the unified event model produced by an execution engine
// during one run. Events for a run arrive as a single ordered sequence;
// runs never share a sequence.
//
// Design principles:
//   - Single Type discriminator with optional payload pointers
//   - Monotonic Sequence for ordering guarantees across goroutines
//   - Exactly one payload is non-nil for a given Type
type EngineEvent struct {
	// Type identifies the kind of event.
	Type EngineEventType `json:"type"`

	// Time is when the event occurred.
	Time time.Time `json:"time"`

	// Sequence is monotonic within a run.
	Sequence uint64 `json:"seq"`

	// RunID identifies the engine run.
	RunID string `json:"run_id,omitempty"`

	// Tool carries tool lifecycle payloads.
	Tool *ToolEventPayload `json:"tool,omitempty"`

	// Stream carries text/reasoning deltas and final content.
	Stream *StreamEventPayload `json:"stream,omitempty"`

	// Error carries run failure details.
	Error *ErrorEventPayload `json:"error,omitempty"`
}

// EngineEventType identifies the kind of engine event.
type EngineEventType string

const (
	// Tool lifecycle
	EngineEventToolStarted   EngineEventType = "tool.started"
	EngineEventToolCompleted EngineEventType = "tool.completed"
	EngineEventToolError     EngineEventType = "tool.error"

	// Incremental content
	EngineEventReasoningDelta EngineEventType = "reasoning.delta"
	EngineEventTextDelta      EngineEventType = "text.delta"

	// Run termination. No further events follow either of these.
	EngineEventRunCompleted EngineEventType = "run.completed"
	EngineEventRunError     EngineEventType = "run.error"
)

// ToolEventPayload describes a tool invocation at some point in its lifecycle.
type ToolEventPayload struct {
	// CallID identifies this specific tool invocation. May be empty when
	// the provider did not supply one; the translator derives a stable
	// fallback in that case.
	CallID string `json:"call_id,omitempty"`

	// Name is the tool name.
	Name string `json:"name,omitempty"`

	// ArgsJSON is the raw JSON arguments (for started events).
	ArgsJSON json.RawMessage `json:"args_json,omitempty"`

	// Result is the raw tool return value (for completed events). It may be
	// JSON, a Python-literal rendering of a structured value, or plain text.
	Result string `json:"result,omitempty"`

	// Error is the failure text (for error events).
	Error string `json:"error,omitempty"`
}

// StreamEventPayload carries incremental and final run content.
type StreamEventPayload struct {
	// Delta is the incremental text or reasoning fragment.
	Delta string `json:"delta,omitempty"`

	// Final is the complete content reported on run.completed. Engines that
	// stream deltas may leave this empty; engines that only report at
	// completion set it so the translator can synthesize a text part.
	Final string `json:"final,omitempty"`
}

// ErrorEventPayload standardizes run failures.
type ErrorEventPayload struct {
	// Message is the error description shown to the client.
	Message string `json:"message"`

	// Err is the original error (runtime only, not serialized).
	Err error `json:"-"`
}
