// Package engine runs one conversational turn against an LLM provider,
// executing tools as the model requests them, and reports progress as an
// ordered stream of events.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/scribe/internal/runctx"
	"github.com/haasonsaas/scribe/internal/tools"
	"github.com/haasonsaas/scribe/pkg/models"
)

// Engine executes one run and emits events on the returned channel.
//
// The channel carries exactly one terminal event (run.completed or
// run.error) as its last element, then closes. Events are ordered by
// Sequence; no event follows the terminal one.
type Engine interface {
	// Name returns the provider identifier used for routing and logging.
	Name() string

	// Run starts a run for the request. The returned channel is closed
	// after the terminal event. Cancelling ctx abandons the run; the
	// engine stops emitting as soon as it notices.
	Run(ctx context.Context, req *RunRequest) (<-chan models.EngineEvent, error)
}

// RunRequest describes one conversational turn.
type RunRequest struct {
	// ConversationID is the session this turn belongs to.
	ConversationID string

	// History is the prior turns, oldest first.
	History []models.Message

	// Message is the new user input.
	Message string

	// System overrides the engine's configured system prompt when set.
	System string
}

// emitter stamps events with run identity and a monotonic sequence
// before handing them to the consumer. Safe for use from one goroutine;
// the engines emit from a single run loop.
type emitter struct {
	runID string
	seq   atomic.Uint64
	ch    chan models.EngineEvent
}

func newEmitter(ctx context.Context, buffer int) *emitter {
	runID := ""
	if scope, ok := runctx.Current(ctx); ok {
		runID = scope.RunID
	}
	return &emitter{
		runID: runID,
		ch:    make(chan models.EngineEvent, buffer),
	}
}

// send stamps and delivers one event, honoring cancellation. Returns
// false when ctx is done and the event was dropped.
func (e *emitter) send(ctx context.Context, ev models.EngineEvent) bool {
	ev.RunID = e.runID
	ev.Sequence = e.seq.Add(1)
	ev.Time = time.Now().UTC()
	select {
	case e.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *emitter) textDelta(ctx context.Context, delta string) bool {
	return e.send(ctx, models.EngineEvent{
		Type:   models.EngineEventTextDelta,
		Stream: &models.StreamEventPayload{Delta: delta},
	})
}

func (e *emitter) reasoningDelta(ctx context.Context, delta string) bool {
	return e.send(ctx, models.EngineEvent{
		Type:   models.EngineEventReasoningDelta,
		Stream: &models.StreamEventPayload{Delta: delta},
	})
}

func (e *emitter) runCompleted(ctx context.Context, final string) bool {
	return e.send(ctx, models.EngineEvent{
		Type:   models.EngineEventRunCompleted,
		Stream: &models.StreamEventPayload{Final: final},
	})
}

func (e *emitter) runError(ctx context.Context, err error) bool {
	return e.send(ctx, models.EngineEvent{
		Type:  models.EngineEventRunError,
		Error: &models.ErrorEventPayload{Message: err.Error(), Err: err},
	})
}

// executeToolCall runs one tool call through the registry, bracketing it
// with tool lifecycle events, and returns the result for the next LLM
// round trip.
func executeToolCall(ctx context.Context, e *emitter, registry *tools.Registry, call models.ToolCall) models.ToolResult {
	e.send(ctx, models.EngineEvent{
		Type: models.EngineEventToolStarted,
		Tool: &models.ToolEventPayload{
			CallID:   call.ID,
			Name:     call.Name,
			ArgsJSON: call.Input,
		},
	})

	res, err := registry.Execute(ctx, call.Name, call.Input)
	if err != nil {
		e.send(ctx, models.EngineEvent{
			Type: models.EngineEventToolError,
			Tool: &models.ToolEventPayload{
				CallID: call.ID,
				Name:   call.Name,
				Error:  err.Error(),
			},
		})
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    err.Error(),
			IsError:    true,
		}
	}

	if res.IsError {
		e.send(ctx, models.EngineEvent{
			Type: models.EngineEventToolError,
			Tool: &models.ToolEventPayload{
				CallID: call.ID,
				Name:   call.Name,
				Error:  res.Content,
			},
		})
	} else {
		e.send(ctx, models.EngineEvent{
			Type: models.EngineEventToolCompleted,
			Tool: &models.ToolEventPayload{
				CallID: call.ID,
				Name:   call.Name,
				Result: res.Content,
			},
		})
	}

	return models.ToolResult{
		ToolCallID: call.ID,
		Content:    res.Content,
		IsError:    res.IsError,
	}
}

// fallbackCallID builds a stable identifier for tool calls the provider
// returned without one: the tool name plus the call's ordinal within the
// run.
func fallbackCallID(name string, ordinal int) string {
	return fmt.Sprintf("call-%s-%d", name, ordinal)
}
