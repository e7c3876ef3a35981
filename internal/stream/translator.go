package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/scribe/pkg/models"
)

// Part ids. The engine never interleaves multiple text or reasoning
// streams within one run, so a single fixed id per kind suffices.
const (
	textPartID      = "text-1"
	reasoningPartID = "reasoning-1"
)

// invocationState tracks one tool call from input to output.
type invocationState string

const (
	invocationInputAvailable  invocationState = "input-available"
	invocationOutputAvailable invocationState = "output-available"
	invocationOutputError     invocationState = "output-error"
)

// invocation is the translator's bookkeeping for one tool call. It is
// discarded at end of run; only the emitted chunks and extracted
// artifacts survive.
type invocation struct {
	CallID string
	Name   string
	State  invocationState
	Input  any
	Output any
	Error  string
}

// Translator converts one run's engine events into ordered protocol
// chunks, tracking open parts and tool invocations. Not safe for
// concurrent use; one translator serves exactly one run.
type Translator struct {
	messageID      string
	conversationID string
	artifactDir    string

	textStarted      bool
	reasoningStarted bool
	done             bool
	failed           bool

	invocations map[string]*invocation
	lastCallID  map[string]string
	callOrdinal int

	seenURLs  map[string]bool
	artifacts []models.Artifact
	text      strings.Builder
}

// NewTranslator creates a translator for one run. The conversation id
// is echoed to the client in the start chunk's metadata; artifactDir is
// where extracted descriptors are statted for their size.
func NewTranslator(conversationID, artifactDir string) *Translator {
	return &Translator{
		messageID:      uuid.NewString(),
		conversationID: conversationID,
		artifactDir:    artifactDir,
		invocations:    make(map[string]*invocation),
		lastCallID:     make(map[string]string),
		seenURLs:       make(map[string]bool),
	}
}

// MessageID returns the id assigned to this run's assistant message.
func (t *Translator) MessageID() string {
	return t.messageID
}

// Opening returns the chunks that begin every stream.
func (t *Translator) Opening() []Chunk {
	return []Chunk{
		{
			Type:            ChunkStart,
			MessageID:       t.messageID,
			MessageMetadata: &MessageMetadata{ConversationID: t.conversationID},
		},
		{Type: ChunkStartStep},
	}
}

// Translate converts one engine event into zero or more chunks. After a
// terminal event (run.completed or run.error) it returns nil for
// everything else; Done reports that state.
func (t *Translator) Translate(ev models.EngineEvent) []Chunk {
	if t.done {
		return nil
	}

	switch ev.Type {
	case models.EngineEventToolStarted:
		return t.toolStarted(ev)
	case models.EngineEventToolCompleted:
		return t.toolCompleted(ev)
	case models.EngineEventToolError:
		return t.toolError(ev)
	case models.EngineEventReasoningDelta:
		return t.reasoningDelta(ev)
	case models.EngineEventTextDelta:
		return t.textDelta(ev)
	case models.EngineEventRunCompleted:
		return t.runCompleted(ev)
	case models.EngineEventRunError:
		return t.runError(ev)
	default:
		return nil
	}
}

// Closing returns the chunks that end the stream: part ends for
// whatever was opened, finish-step, and finish with the reason
// determined by how the run terminated. MarkFailed forces the error
// reason for failures that happened outside the event sequence.
func (t *Translator) Closing() []Chunk {
	var out []Chunk
	if t.reasoningStarted {
		out = append(out, Chunk{Type: ChunkReasoningEnd, ID: reasoningPartID})
	}
	if t.textStarted {
		out = append(out, Chunk{Type: ChunkTextEnd, ID: textPartID})
	}
	out = append(out, Chunk{Type: ChunkFinishStep})

	reason := FinishReasonStop
	if t.failed {
		reason = FinishReasonError
	}
	out = append(out, Chunk{Type: ChunkFinish, FinishReason: reason})
	return out
}

// Done reports whether a terminal event has been consumed.
func (t *Translator) Done() bool {
	return t.done
}

// Failed reports whether the run terminated in error.
func (t *Translator) Failed() bool {
	return t.failed
}

// MarkFailed records a failure that occurred while driving the run
// rather than inside it, so Closing emits finish with reason error.
func (t *Translator) MarkFailed() {
	t.failed = true
}

// Text returns the accumulated assistant text for persistence.
func (t *Translator) Text() string {
	return t.text.String()
}

// Artifacts returns the deduplicated artifacts observed during the run.
func (t *Translator) Artifacts() []models.Artifact {
	return t.artifacts
}

func (t *Translator) toolStarted(ev models.EngineEvent) []Chunk {
	if ev.Tool == nil {
		return nil
	}
	callID := t.callIDFor(ev.Tool, true)
	name := ev.Tool.Name
	if name == "" {
		name = "tool"
	}
	input := decodeArgs(ev.Tool.ArgsJSON)

	t.invocations[callID] = &invocation{
		CallID: callID,
		Name:   name,
		State:  invocationInputAvailable,
		Input:  input,
	}

	return []Chunk{
		{Type: ChunkToolInputStart, ToolCallID: callID, ToolName: name},
		{Type: ChunkToolInputAvail, ToolCallID: callID, ToolName: name, Input: input},
	}
}

func (t *Translator) toolCompleted(ev models.EngineEvent) []Chunk {
	if ev.Tool == nil {
		return nil
	}
	callID := t.callIDFor(ev.Tool, false)
	output := Normalize(ev.Tool.Result)

	if inv, ok := t.invocations[callID]; ok {
		inv.State = invocationOutputAvailable
		inv.Output = output
	}

	out := []Chunk{{Type: ChunkToolOutput, ToolCallID: callID, Output: output}}

	for _, a := range ExtractArtifacts(output, t.conversationID, t.artifactDir) {
		if t.seenURLs[a.URL] {
			continue
		}
		t.seenURLs[a.URL] = true
		t.artifacts = append(t.artifacts, a)
		out = append(out, Chunk{Type: ChunkFile, URL: a.URL, MediaType: a.MediaType})
	}
	return out
}

func (t *Translator) toolError(ev models.EngineEvent) []Chunk {
	if ev.Tool == nil {
		return nil
	}
	callID := t.callIDFor(ev.Tool, false)
	errText := ev.Tool.Error
	if errText == "" {
		errText = "Tool failed"
	}

	if inv, ok := t.invocations[callID]; ok {
		inv.State = invocationOutputError
		inv.Error = errText
	}

	return []Chunk{{Type: ChunkToolOutputErr, ToolCallID: callID, ErrorText: errText}}
}

func (t *Translator) reasoningDelta(ev models.EngineEvent) []Chunk {
	if ev.Stream == nil || ev.Stream.Delta == "" {
		return nil
	}
	var out []Chunk
	if !t.reasoningStarted {
		t.reasoningStarted = true
		out = append(out, Chunk{Type: ChunkReasoningStart, ID: reasoningPartID})
	}
	return append(out, Chunk{Type: ChunkReasoningDelta, ID: reasoningPartID, Delta: ev.Stream.Delta})
}

func (t *Translator) textDelta(ev models.EngineEvent) []Chunk {
	if ev.Stream == nil || ev.Stream.Delta == "" {
		return nil
	}
	var out []Chunk
	if !t.textStarted {
		t.textStarted = true
		out = append(out, Chunk{Type: ChunkTextStart, ID: textPartID})
	}
	t.text.WriteString(ev.Stream.Delta)
	return append(out, Chunk{Type: ChunkTextDelta, ID: textPartID, Delta: ev.Stream.Delta})
}

func (t *Translator) runCompleted(ev models.EngineEvent) []Chunk {
	t.done = true

	// Engines that only report content at completion never opened a text
	// part; synthesize one from the final content.
	if !t.textStarted && ev.Stream != nil && ev.Stream.Final != "" {
		t.textStarted = true
		t.text.WriteString(ev.Stream.Final)
		return []Chunk{
			{Type: ChunkTextStart, ID: textPartID},
			{Type: ChunkTextDelta, ID: textPartID, Delta: ev.Stream.Final},
		}
	}
	return nil
}

func (t *Translator) runError(ev models.EngineEvent) []Chunk {
	t.done = true
	t.failed = true

	errText := "Run error"
	if ev.Error != nil && ev.Error.Message != "" {
		errText = ev.Error.Message
	}
	return []Chunk{{Type: ChunkError, ErrorText: errText}}
}

// callIDFor resolves the tool call id for an event: the provider id
// when present, otherwise a deterministic fallback. Start events mint
// the fallback; completion and error events reuse the one minted for
// the same tool name so lookups agree.
func (t *Translator) callIDFor(tool *models.ToolEventPayload, isStart bool) string {
	if tool.CallID != "" {
		t.lastCallID[tool.Name] = tool.CallID
		return tool.CallID
	}
	if !isStart {
		if id, ok := t.lastCallID[tool.Name]; ok {
			return id
		}
	}
	t.callOrdinal++
	id := fmt.Sprintf("call-%s-%d", tool.Name, t.callOrdinal)
	t.lastCallID[tool.Name] = id
	return id
}

// decodeArgs turns raw JSON tool arguments into a structured value for
// the wire. Undecodable input is passed through as a string so the
// client still sees something.
func decodeArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
