package stream

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/haasonsaas/scribe/pkg/models"
)

// runThrough feeds events through a fresh translator and returns the
// full chunk sequence including opening and closing records.
func runThrough(t *testing.T, conversationID string, events []models.EngineEvent) ([]Chunk, *Translator) {
	t.Helper()
	tr := NewTranslator(conversationID, "")
	chunks := tr.Opening()
	for _, ev := range events {
		chunks = append(chunks, tr.Translate(ev)...)
	}
	return append(chunks, tr.Closing()...), tr
}

// checkPartLifecycle asserts that every delta and end chunk follows an
// unmatched start for the same part id, and that every opened part is
// closed exactly once.
func checkPartLifecycle(t *testing.T, chunks []Chunk) {
	t.Helper()
	open := make(map[string]bool)
	for i, c := range chunks {
		switch c.Type {
		case ChunkTextStart, ChunkReasoningStart:
			if open[c.ID] {
				t.Errorf("chunk %d: part %q started twice", i, c.ID)
			}
			open[c.ID] = true
		case ChunkTextDelta, ChunkReasoningDelta:
			if !open[c.ID] {
				t.Errorf("chunk %d: delta for part %q without start", i, c.ID)
			}
		case ChunkTextEnd, ChunkReasoningEnd:
			if !open[c.ID] {
				t.Errorf("chunk %d: end for part %q without start", i, c.ID)
			}
			delete(open, c.ID)
		}
	}
	for id := range open {
		t.Errorf("part %q never closed", id)
	}
}

func chunkTypes(chunks []Chunk) []ChunkType {
	types := make([]ChunkType, len(chunks))
	for i, c := range chunks {
		types[i] = c.Type
	}
	return types
}

func countType(chunks []Chunk, typ ChunkType) int {
	n := 0
	for _, c := range chunks {
		if c.Type == typ {
			n++
		}
	}
	return n
}

func textEvent(delta string) models.EngineEvent {
	return models.EngineEvent{
		Type:   models.EngineEventTextDelta,
		Stream: &models.StreamEventPayload{Delta: delta},
	}
}

func TestTranslatorFullRun(t *testing.T) {
	events := []models.EngineEvent{
		{Type: models.EngineEventReasoningDelta, Stream: &models.StreamEventPayload{Delta: "let me think"}},
		textEvent("Working on "),
		{Type: models.EngineEventToolStarted, Tool: &models.ToolEventPayload{
			CallID:   "toolu_01",
			Name:     "create_artifact",
			ArgsJSON: json.RawMessage(`{"title":"Report"}`),
		}},
		{Type: models.EngineEventToolCompleted, Tool: &models.ToolEventPayload{
			CallID: "toolu_01",
			Name:   "create_artifact",
			Result: `{"status":"created","artifact":{"filename":"report.md","size_bytes":64}}`,
		}},
		textEvent("it."),
		{Type: models.EngineEventRunCompleted, Stream: &models.StreamEventPayload{Final: "Working on it."}},
	}

	chunks, tr := runThrough(t, "conv-full", events)
	checkPartLifecycle(t, chunks)

	want := []ChunkType{
		ChunkStart, ChunkStartStep,
		ChunkReasoningStart, ChunkReasoningDelta,
		ChunkTextStart, ChunkTextDelta,
		ChunkToolInputStart, ChunkToolInputAvail,
		ChunkToolOutput, ChunkFile,
		ChunkTextDelta,
		ChunkReasoningEnd, ChunkTextEnd,
		ChunkFinishStep, ChunkFinish,
	}
	got := chunkTypes(chunks)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("chunk types =\n%v\nwant\n%v", got, want)
	}

	start := chunks[0]
	if start.MessageID == "" || start.MessageMetadata == nil || start.MessageMetadata.ConversationID != "conv-full" {
		t.Errorf("start chunk = %+v", start)
	}

	file := chunks[9]
	if file.URL != "/api/artifacts/conv-full/report.md" || file.MediaType != "text/markdown" {
		t.Errorf("file chunk = %+v", file)
	}

	last := chunks[len(chunks)-1]
	if last.FinishReason != FinishReasonStop {
		t.Errorf("finish reason = %q", last.FinishReason)
	}

	if tr.Text() != "Working on it." {
		t.Errorf("accumulated text = %q", tr.Text())
	}
	if len(tr.Artifacts()) != 1 {
		t.Errorf("artifacts = %+v", tr.Artifacts())
	}
}

func TestRunErrorSequence(t *testing.T) {
	events := []models.EngineEvent{
		{Type: models.EngineEventRunError, Error: &models.ErrorEventPayload{Message: "boom"}},
		textEvent("never shown"),
	}

	chunks, tr := runThrough(t, "conv-err", events)
	checkPartLifecycle(t, chunks)

	if countType(chunks, ChunkTextStart) != 0 {
		t.Error("text-start emitted for a run that never produced text")
	}
	var errChunk *Chunk
	for i := range chunks {
		if chunks[i].Type == ChunkError {
			errChunk = &chunks[i]
		}
	}
	if errChunk == nil || errChunk.ErrorText != "boom" {
		t.Fatalf("error chunk = %+v", errChunk)
	}
	last := chunks[len(chunks)-1]
	if last.Type != ChunkFinish || last.FinishReason != FinishReasonError {
		t.Errorf("last chunk = %+v, want finish with reason error", last)
	}
	if !tr.Failed() {
		t.Error("translator not marked failed")
	}
}

func TestRunCompletedSynthesizesText(t *testing.T) {
	events := []models.EngineEvent{
		{Type: models.EngineEventRunCompleted, Stream: &models.StreamEventPayload{Final: "hello"}},
	}

	chunks, tr := runThrough(t, "conv-synth", events)
	checkPartLifecycle(t, chunks)

	if countType(chunks, ChunkTextStart) != 1 || countType(chunks, ChunkTextDelta) != 1 || countType(chunks, ChunkTextEnd) != 1 {
		t.Fatalf("chunk types = %v, want one synthesized text triple", chunkTypes(chunks))
	}
	for _, c := range chunks {
		if c.Type == ChunkTextDelta && c.Delta != "hello" {
			t.Errorf("synthesized delta = %q", c.Delta)
		}
	}
	if tr.Text() != "hello" {
		t.Errorf("Text() = %q", tr.Text())
	}
}

func TestRunCompletedDoesNotDuplicateStreamedText(t *testing.T) {
	events := []models.EngineEvent{
		textEvent("hello"),
		{Type: models.EngineEventRunCompleted, Stream: &models.StreamEventPayload{Final: "hello"}},
	}

	chunks, tr := runThrough(t, "conv-nodup", events)
	checkPartLifecycle(t, chunks)

	if countType(chunks, ChunkTextDelta) != 1 {
		t.Errorf("chunk types = %v, want a single delta", chunkTypes(chunks))
	}
	if tr.Text() != "hello" {
		t.Errorf("Text() = %q", tr.Text())
	}
}

func TestArtifactDeduplicatedByURL(t *testing.T) {
	result := `{"artifact":{"filename":"same.md"}}`
	events := []models.EngineEvent{
		{Type: models.EngineEventToolStarted, Tool: &models.ToolEventPayload{CallID: "t1", Name: "create_artifact"}},
		{Type: models.EngineEventToolCompleted, Tool: &models.ToolEventPayload{CallID: "t1", Name: "create_artifact", Result: result}},
		{Type: models.EngineEventToolStarted, Tool: &models.ToolEventPayload{CallID: "t2", Name: "create_artifact"}},
		{Type: models.EngineEventToolCompleted, Tool: &models.ToolEventPayload{CallID: "t2", Name: "create_artifact", Result: result}},
	}

	chunks, tr := runThrough(t, "conv-dedupe", events)
	if countType(chunks, ChunkFile) != 1 {
		t.Errorf("file chunks = %d, want 1", countType(chunks, ChunkFile))
	}
	if len(tr.Artifacts()) != 1 {
		t.Errorf("artifacts = %+v", tr.Artifacts())
	}
}

func TestToolErrorIsLocal(t *testing.T) {
	events := []models.EngineEvent{
		{Type: models.EngineEventToolStarted, Tool: &models.ToolEventPayload{CallID: "t1", Name: "web_search"}},
		{Type: models.EngineEventToolError, Tool: &models.ToolEventPayload{CallID: "t1", Name: "web_search", Error: "rate limited"}},
		textEvent("Falling back."),
		{Type: models.EngineEventRunCompleted, Stream: &models.StreamEventPayload{Final: "Falling back."}},
	}

	chunks, tr := runThrough(t, "conv-toolerr", events)
	checkPartLifecycle(t, chunks)

	var toolErr *Chunk
	for i := range chunks {
		if chunks[i].Type == ChunkToolOutputErr {
			toolErr = &chunks[i]
		}
	}
	if toolErr == nil || toolErr.ErrorText != "rate limited" || toolErr.ToolCallID != "t1" {
		t.Fatalf("tool-output-error chunk = %+v", toolErr)
	}
	if tr.Failed() {
		t.Error("tool failure must not fail the run")
	}
	last := chunks[len(chunks)-1]
	if last.FinishReason != FinishReasonStop {
		t.Errorf("finish reason = %q", last.FinishReason)
	}
}

func TestEmptyDeltasSuppressed(t *testing.T) {
	events := []models.EngineEvent{
		{Type: models.EngineEventTextDelta, Stream: &models.StreamEventPayload{Delta: ""}},
		{Type: models.EngineEventReasoningDelta, Stream: &models.StreamEventPayload{Delta: ""}},
	}

	chunks, _ := runThrough(t, "conv-empty", events)
	for _, typ := range []ChunkType{ChunkTextStart, ChunkTextDelta, ChunkReasoningStart, ChunkReasoningDelta} {
		if countType(chunks, typ) != 0 {
			t.Errorf("%s emitted for empty delta", typ)
		}
	}
}

func TestFallbackCallIDStaysStable(t *testing.T) {
	events := []models.EngineEvent{
		{Type: models.EngineEventToolStarted, Tool: &models.ToolEventPayload{Name: "create_artifact"}},
		{Type: models.EngineEventToolCompleted, Tool: &models.ToolEventPayload{Name: "create_artifact", Result: `{"status":"ok"}`}},
	}

	chunks, _ := runThrough(t, "conv-fallback", events)

	var startID, outputID string
	for _, c := range chunks {
		switch c.Type {
		case ChunkToolInputStart:
			startID = c.ToolCallID
		case ChunkToolOutput:
			outputID = c.ToolCallID
		}
	}
	if startID == "" || startID != outputID {
		t.Errorf("call ids disagree: start %q, output %q", startID, outputID)
	}
}

func TestSilentExhaustionClosesCleanly(t *testing.T) {
	chunks, tr := runThrough(t, "conv-silent", []models.EngineEvent{textEvent("partial")})
	checkPartLifecycle(t, chunks)

	last := chunks[len(chunks)-1]
	if last.Type != ChunkFinish || last.FinishReason != FinishReasonStop {
		t.Errorf("last chunk = %+v", last)
	}
	if tr.Done() {
		t.Error("no terminal event was consumed")
	}
}

func TestTranslateAfterTerminalIsNoop(t *testing.T) {
	tr := NewTranslator("conv-done", "")
	tr.Translate(models.EngineEvent{Type: models.EngineEventRunCompleted, Stream: &models.StreamEventPayload{Final: "done"}})
	if got := tr.Translate(textEvent("late")); got != nil {
		t.Errorf("Translate after terminal = %+v", got)
	}
}
