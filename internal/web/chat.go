package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/haasonsaas/scribe/internal/observability"
	"github.com/haasonsaas/scribe/internal/store"
	"github.com/haasonsaas/scribe/internal/stream"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	// Message is the user input for this turn.
	Message string `json:"message"`

	// ConversationID selects an existing conversation. Empty creates a
	// new one; the client learns the id from the start chunk metadata.
	ConversationID string `json:"conversation_id"`
}

// apiChat handles POST /api/chat: it resolves the conversation and
// streams the run as server-sent events.
func (h *Handler) apiChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		h.jsonError(w, "Message is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
		if _, err := h.config.Store.EnsureConversation(ctx, conversationID, req.Message); err != nil {
			h.config.Logger.Error(ctx, "create conversation failed", "error", err)
			h.jsonError(w, "Failed to create conversation", http.StatusInternalServerError)
			return
		}
	} else {
		exists, err := h.config.Store.ConversationExists(ctx, conversationID)
		if err != nil {
			h.config.Logger.Error(ctx, "conversation lookup failed", "error", err)
			h.jsonError(w, "Failed to load conversation", http.StatusInternalServerError)
			return
		}
		if !exists {
			h.jsonError(w, "Conversation not found", http.StatusNotFound)
			return
		}
	}

	ctx = observability.AddConversationID(ctx, conversationID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	err := h.adapter.Stream(ctx, w, &stream.Request{
		ConversationID: conversationID,
		Message:        req.Message,
	})
	if err != nil {
		// Nothing was written yet; a conventional error response is
		// still possible.
		if errors.Is(err, store.ErrNotFound) {
			h.jsonError(w, "Conversation not found", http.StatusNotFound)
			return
		}
		h.config.Logger.Error(ctx, "stream failed to start", "conversation_id", conversationID, "error", err)
		h.jsonError(w, "Failed to start stream", http.StatusInternalServerError)
	}
}
