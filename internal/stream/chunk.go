// Package stream converts engine events for one run into the ordered
// chunk protocol consumed by the web client, and owns the lifecycle of
// the connection that carries it.
package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// ChunkType identifies a protocol chunk variant on the wire.
type ChunkType string

const (
	ChunkStart          ChunkType = "start"
	ChunkStartStep      ChunkType = "start-step"
	ChunkTextStart      ChunkType = "text-start"
	ChunkTextDelta      ChunkType = "text-delta"
	ChunkTextEnd        ChunkType = "text-end"
	ChunkReasoningStart ChunkType = "reasoning-start"
	ChunkReasoningDelta ChunkType = "reasoning-delta"
	ChunkReasoningEnd   ChunkType = "reasoning-end"
	ChunkToolInputStart ChunkType = "tool-input-start"
	ChunkToolInputAvail ChunkType = "tool-input-available"
	ChunkToolOutput     ChunkType = "tool-output-available"
	ChunkToolOutputErr  ChunkType = "tool-output-error"
	ChunkFile           ChunkType = "file"
	ChunkFinishStep     ChunkType = "finish-step"
	ChunkFinish         ChunkType = "finish"
	ChunkError          ChunkType = "error"
)

// Finish reasons carried by the finish chunk.
const (
	FinishReasonStop  = "stop"
	FinishReasonError = "error"
)

// Chunk is one record of the client streaming protocol. The JSON shape
// matches the AI SDK UIMessageChunk schema; fields irrelevant to a
// given type are omitted.
type Chunk struct {
	Type ChunkType `json:"type"`

	// MessageID and MessageMetadata are set on the start chunk only.
	MessageID       string           `json:"messageId,omitempty"`
	MessageMetadata *MessageMetadata `json:"messageMetadata,omitempty"`

	// ID names the text or reasoning part the chunk belongs to.
	ID string `json:"id,omitempty"`

	// Delta is the incremental fragment for text-delta/reasoning-delta.
	Delta string `json:"delta,omitempty"`

	// Tool lifecycle fields.
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	Input      any    `json:"input,omitempty"`
	Output     any    `json:"output,omitempty"`

	// ErrorText carries tool-output-error and error descriptions.
	ErrorText string `json:"errorText,omitempty"`

	// File fields.
	URL       string `json:"url,omitempty"`
	MediaType string `json:"mediaType,omitempty"`

	// FinishReason is set on the finish chunk: stop or error.
	FinishReason string `json:"finishReason,omitempty"`
}

// MessageMetadata rides on the start chunk so the client learns the
// server-assigned conversation id before any content arrives.
type MessageMetadata struct {
	ConversationID string `json:"conversationId"`
}

// paddingSize is the length of the leading SSE comment record. Some
// proxies buffer small payloads; the padding flushes the stream early
// so tool events show up immediately in the UI.
const paddingSize = 2048

// Writer frames chunks as server-sent events on an underlying
// connection, flushing after every record. Safe for use from one
// goroutine per stream; the mutex only guards against a late write
// racing a close.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	failed  bool
}

// NewWriter wraps w for SSE output. When w implements http.Flusher
// every record is flushed immediately; plain writers (buffers in
// tests) are written through without flushing.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// WritePadding emits the leading comment record.
func (sw *Writer) WritePadding() error {
	return sw.writeRecord(": " + strings.Repeat(" ", paddingSize) + "\n\n")
}

// WriteChunk emits one chunk as a data record.
func (sw *Writer) WriteChunk(c Chunk) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal %s chunk: %w", c.Type, err)
	}
	return sw.writeRecord("data: " + string(data) + "\n\n")
}

// Failed reports whether a prior write errored. Once the connection is
// gone there is no point driving the run further.
func (sw *Writer) Failed() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.failed
}

func (sw *Writer) writeRecord(record string) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.failed {
		return io.ErrClosedPipe
	}
	if _, err := io.WriteString(sw.w, record); err != nil {
		sw.failed = true
		return err
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}
