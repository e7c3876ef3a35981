package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/haasonsaas/scribe/internal/store"
)

// CreateConversationRequest is the body of POST /api/conversations.
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// RenameConversationRequest is the body of PATCH /api/conversations/{id}.
type RenameConversationRequest struct {
	Title string `json:"title"`
}

// apiConversations handles /api/conversations.
func (h *Handler) apiConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listConversations(w, r)
	case http.MethodPost:
		h.createConversation(w, r)
	default:
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.config.Store.ListConversations(r.Context())
	if err != nil {
		h.config.Logger.Error(r.Context(), "list conversations failed", "error", err)
		h.jsonError(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, map[string]any{
		"conversations": summaries,
		"total":         len(summaries),
	})
}

func (h *Handler) createConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	conv, err := h.config.Store.CreateConversation(r.Context(), "", req.Title)
	if err != nil {
		h.config.Logger.Error(r.Context(), "create conversation failed", "error", err)
		h.jsonError(w, "Failed to create conversation", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(conv)
}

// apiConversation handles /api/conversations/{id}.
func (h *Handler) apiConversation(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	if id == "" || strings.Contains(id, "/") {
		h.jsonError(w, "Conversation not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getConversation(w, r, id)
	case http.MethodPatch:
		h.renameConversation(w, r, id)
	case http.MethodDelete:
		h.deleteConversation(w, r, id)
	default:
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) getConversation(w http.ResponseWriter, r *http.Request, id string) {
	conv, err := h.config.Store.GetConversation(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.jsonError(w, "Conversation not found", http.StatusNotFound)
			return
		}
		h.config.Logger.Error(r.Context(), "get conversation failed", "conversation_id", id, "error", err)
		h.jsonError(w, "Failed to load conversation", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, conv)
}

func (h *Handler) renameConversation(w http.ResponseWriter, r *http.Request, id string) {
	var req RenameConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		h.jsonError(w, "Title is required", http.StatusBadRequest)
		return
	}

	if err := h.config.Store.RenameConversation(r.Context(), id, req.Title); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.jsonError(w, "Conversation not found", http.StatusNotFound)
			return
		}
		h.config.Logger.Error(r.Context(), "rename conversation failed", "conversation_id", id, "error", err)
		h.jsonError(w, "Failed to rename conversation", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, map[string]string{"id": id, "title": req.Title})
}

func (h *Handler) deleteConversation(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.config.Store.DeleteConversation(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.jsonError(w, "Conversation not found", http.StatusNotFound)
			return
		}
		h.config.Logger.Error(r.Context(), "delete conversation failed", "conversation_id", id, "error", err)
		h.jsonError(w, "Failed to delete conversation", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, map[string]string{"status": "deleted", "id": id})
}
