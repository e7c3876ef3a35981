package engine

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/scribe/internal/tools"
	"github.com/haasonsaas/scribe/pkg/models"
)

// ScriptedEngine replays a fixed sequence of steps instead of calling an
// LLM. It backs the "scripted" provider for local development and is the
// workhorse of the streaming tests: tool steps go through the real
// registry, so artifact side effects happen exactly as they would in
// production.
type ScriptedEngine struct {
	registry *tools.Registry
	steps    []Step
	final    string
}

// Step is one scripted action within a run.
type Step struct {
	// Text emits a text delta.
	Text string

	// Reasoning emits a reasoning delta.
	Reasoning string

	// Tool executes a tool call through the registry.
	Tool *ToolStep

	// FailWith terminates the run with run.error. No later steps run.
	FailWith string
}

// ToolStep describes a scripted tool invocation.
type ToolStep struct {
	// CallID is optional; a fallback is derived when empty.
	CallID string

	Name string
	Args json.RawMessage
}

// NewScriptedEngine creates a scripted engine. After all steps run, the
// engine emits run.completed carrying final as the complete content.
func NewScriptedEngine(registry *tools.Registry, steps []Step, final string) *ScriptedEngine {
	return &ScriptedEngine{
		registry: registry,
		steps:    steps,
		final:    final,
	}
}

func (e *ScriptedEngine) Name() string {
	return "scripted"
}

// Run replays the script.
func (e *ScriptedEngine) Run(ctx context.Context, req *RunRequest) (<-chan models.EngineEvent, error) {
	em := newEmitter(ctx, 16)

	go func() {
		defer close(em.ch)

		callOrdinal := 0
		for _, step := range e.steps {
			switch {
			case step.FailWith != "":
				em.send(ctx, models.EngineEvent{
					Type:  models.EngineEventRunError,
					Error: &models.ErrorEventPayload{Message: step.FailWith},
				})
				return

			case step.Tool != nil:
				call := models.ToolCall{
					ID:    step.Tool.CallID,
					Name:  step.Tool.Name,
					Input: step.Tool.Args,
				}
				if call.ID == "" {
					callOrdinal++
					call.ID = fallbackCallID(call.Name, callOrdinal)
				}
				executeToolCall(ctx, em, e.registry, call)

			case step.Reasoning != "":
				if !em.reasoningDelta(ctx, step.Reasoning) {
					return
				}

			case step.Text != "":
				if !em.textDelta(ctx, step.Text) {
					return
				}
			}
		}

		em.runCompleted(ctx, e.final)
	}()

	return em.ch, nil
}
