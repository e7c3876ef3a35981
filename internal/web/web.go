// Package web exposes the Scribe HTTP API: streaming chat, conversation
// management, artifact downloads and skill listing.
package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/scribe/internal/engine"
	"github.com/haasonsaas/scribe/internal/observability"
	"github.com/haasonsaas/scribe/internal/skills"
	"github.com/haasonsaas/scribe/internal/store"
	"github.com/haasonsaas/scribe/internal/stream"
)

// Config holds the collaborators the API serves.
type Config struct {
	// Store persists conversations and messages.
	Store store.Store

	// Engine runs chat turns.
	Engine engine.Engine

	// SkillRegistry lists discovered skills (optional).
	SkillRegistry *skills.Registry

	// ArtifactsRoot is the directory holding per-conversation artifact
	// subdirectories.
	ArtifactsRoot string

	// Logger for request and error logging.
	Logger *observability.Logger

	// Metrics for request instrumentation (optional).
	Metrics *observability.Metrics

	// Tracer for distributed tracing (optional).
	Tracer *observability.Tracer
}

// Handler is the API HTTP handler.
type Handler struct {
	config  *Config
	adapter *stream.Adapter
	mux     *http.ServeMux
}

// NewHandler creates the API handler and wires its routes.
func NewHandler(cfg *Config) *Handler {
	h := &Handler{
		config:  cfg,
		adapter: stream.NewAdapter(cfg.Engine, cfg.Store, cfg.Logger, cfg.Metrics, cfg.Tracer, cfg.ArtifactsRoot),
		mux:     http.NewServeMux(),
	}
	h.setupRoutes()
	return h
}

func (h *Handler) setupRoutes() {
	h.mux.HandleFunc("/api/chat", h.apiChat)
	h.mux.HandleFunc("/api/conversations", h.apiConversations)
	h.mux.HandleFunc("/api/conversations/", h.apiConversation)
	h.mux.HandleFunc("/api/artifacts/", h.apiArtifacts)
	h.mux.HandleFunc("/api/skills", h.apiSkills)
	h.mux.HandleFunc("/api/skills/refresh", h.apiSkillsRefresh)
	h.mux.HandleFunc("/healthz", h.handleHealthz)
	h.mux.Handle("/metrics", promhttp.Handler())
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Mount returns the handler with middleware applied.
func (h *Handler) Mount() http.Handler {
	var handler http.Handler = h
	handler = MetricsMiddleware(h.config.Metrics)(handler)
	handler = LoggingMiddleware(h.config.Logger)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response.
func (h *Handler) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.config.Logger.Error(context.Background(), "json encode error", "error", err)
	}
}

// jsonError writes a JSON error response.
func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
