package stream

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/scribe/internal/engine"
	"github.com/haasonsaas/scribe/internal/observability"
	"github.com/haasonsaas/scribe/internal/runctx"
	"github.com/haasonsaas/scribe/internal/store"
	"github.com/haasonsaas/scribe/pkg/models"
)

// Adapter owns the lifecycle of one streaming chat connection: it
// establishes the run scope, drives the engine, translates events into
// chunks, writes them to the wire, and persists the finished turn. Run
// scope teardown happens on every exit path.
type Adapter struct {
	engine        engine.Engine
	store         store.Store
	logger        *observability.Logger
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	artifactsRoot string
}

// Request describes one streaming chat turn. The conversation must
// already exist; the web layer creates it before streaming starts.
type Request struct {
	ConversationID string
	Message        string

	// System overrides the engine's configured system prompt when set.
	System string
}

// NewAdapter creates a stream adapter. Metrics and tracer may be nil.
func NewAdapter(eng engine.Engine, st store.Store, logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer, artifactsRoot string) *Adapter {
	return &Adapter{
		engine:        eng,
		store:         st,
		logger:        logger,
		metrics:       metrics,
		tracer:        tracer,
		artifactsRoot: artifactsRoot,
	}
}

// Stream runs one chat turn and writes the chunk protocol to w.
//
// An error return means the stream never started and the caller may
// still send a conventional error response. Once the first byte is
// written, all failures are reported in-band (error chunk, finish with
// reason error) or absorbed (client disconnect), and Stream returns nil.
func (a *Adapter) Stream(ctx context.Context, w io.Writer, req *Request) error {
	exists, err := a.store.ConversationExists(ctx, req.ConversationID)
	if err != nil {
		return fmt.Errorf("check conversation: %w", err)
	}
	if !exists {
		return fmt.Errorf("conversation %s: %w", req.ConversationID, store.ErrNotFound)
	}

	history, err := a.store.GetHistory(ctx, req.ConversationID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	if err := a.store.AddMessage(ctx, &models.Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		Role:           models.RoleUser,
		Content:        req.Message,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("persist user message: %w", err)
	}

	artifactDir := filepath.Join(a.artifactsRoot, req.ConversationID)
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	runCtx, scope := runctx.Begin(ctx, req.ConversationID, artifactDir)
	defer scope.End()

	var runSpan trace.Span
	if a.tracer != nil {
		runCtx, runSpan = a.tracer.TraceRun(runCtx, req.ConversationID, scope.RunID)
		defer runSpan.End()
	}

	runCtx, cancel := context.WithCancel(runCtx)
	defer cancel()

	events, err := a.engine.Run(runCtx, &engine.RunRequest{
		ConversationID: req.ConversationID,
		History:        history,
		Message:        req.Message,
		System:         req.System,
	})
	if err != nil {
		if runSpan != nil {
			a.tracer.RecordError(runSpan, err)
		}
		return fmt.Errorf("start run: %w", err)
	}

	start := time.Now()
	if a.metrics != nil {
		a.metrics.RunStarted()
	}
	a.logger.Info(ctx, "run started",
		"conversation_id", req.ConversationID,
		"run_id", scope.RunID,
		"provider", a.engine.Name(),
		"history_len", len(history),
	)

	sw := NewWriter(w)
	tr := NewTranslator(req.ConversationID, artifactDir)

	if err := sw.WritePadding(); err != nil {
		a.logger.Debug(ctx, "padding write failed", "error", err)
	}
	for _, c := range tr.Opening() {
		a.writeChunk(sw, c)
	}

	for ev := range events {
		if sw.Failed() {
			// Client is gone. Stop the engine and drain until it notices.
			cancel()
			continue
		}
		for _, c := range tr.Translate(ev) {
			if c.Type == ChunkFile && a.metrics != nil {
				a.metrics.ArtifactEmitted(models.KindForFilename(filepath.Base(c.URL)))
			}
			a.writeChunk(sw, c)
		}
	}

	canceled := ctx.Err() != nil || sw.Failed()
	if canceled && !tr.Done() {
		tr.MarkFailed()
	}
	for _, c := range tr.Closing() {
		a.writeChunk(sw, c)
	}

	outcome := a.finish(ctx, tr, req, canceled)
	if runSpan != nil {
		runSpan.SetAttributes(attribute.String("run.outcome", outcome))
	}
	if a.metrics != nil {
		a.metrics.RunEnded(outcome, time.Since(start).Seconds())
	}
	a.logger.Info(ctx, "run finished",
		"conversation_id", req.ConversationID,
		"run_id", scope.RunID,
		"outcome", outcome,
		"artifacts", len(tr.Artifacts()),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// finish applies the persistence policy and names the outcome.
//
// A failed run persists nothing; partial turns from an errored engine
// are garbage. A client disconnect persists whatever text and artifacts
// accumulated so the history stays consistent with what was generated.
func (a *Adapter) finish(ctx context.Context, tr *Translator, req *Request, canceled bool) string {
	switch {
	case tr.Done() && tr.Failed():
		return "error"
	case canceled && tr.Text() == "" && len(tr.Artifacts()) == 0:
		return "canceled"
	}

	// Persistence must not use the request context; on disconnect it is
	// already canceled.
	persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := a.store.AddMessage(persistCtx, &models.Message{
		ID:             tr.MessageID(),
		ConversationID: req.ConversationID,
		Role:           models.RoleAssistant,
		Content:        tr.Text(),
		Artifacts:      tr.Artifacts(),
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		// The client already has its answer; the turn is just missing
		// from history.
		a.logger.Error(ctx, "persist assistant message failed",
			"conversation_id", req.ConversationID,
			"error", err,
		)
		if a.metrics != nil {
			a.metrics.RecordError("store", "persist_message")
		}
	}

	if canceled {
		return "canceled"
	}
	return "completed"
}

// writeChunk writes one record, counting it and swallowing transport
// errors. A disconnected client is a cancellation, not a failure.
func (a *Adapter) writeChunk(sw *Writer, c Chunk) {
	if err := sw.WriteChunk(c); err != nil {
		a.logger.Debug(context.Background(), "chunk write failed", "chunk_type", c.Type, "error", err)
		return
	}
	if a.metrics != nil {
		a.metrics.ChunkWritten(string(c.Type))
	}
}
