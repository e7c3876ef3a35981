package web

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haasonsaas/scribe/pkg/models"
)

// apiArtifacts handles /api/artifacts/{conversation} (list) and
// /api/artifacts/{conversation}/{filename} (download).
func (h *Handler) apiArtifacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/artifacts/")
	conversationID, filename, hasFile := strings.Cut(rest, "/")
	if conversationID == "" {
		h.jsonError(w, "Conversation not found", http.StatusNotFound)
		return
	}

	exists, err := h.config.Store.ConversationExists(r.Context(), conversationID)
	if err != nil {
		h.config.Logger.Error(r.Context(), "conversation lookup failed", "error", err)
		h.jsonError(w, "Failed to load conversation", http.StatusInternalServerError)
		return
	}
	if !exists {
		h.jsonError(w, "Conversation not found", http.StatusNotFound)
		return
	}

	if !hasFile || filename == "" {
		h.listArtifacts(w, r, conversationID)
		return
	}
	h.downloadArtifact(w, r, conversationID, filename)
}

func (h *Handler) listArtifacts(w http.ResponseWriter, r *http.Request, conversationID string) {
	dir := filepath.Join(h.config.ArtifactsRoot, conversationID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			h.jsonResponse(w, map[string]any{"artifacts": []models.Artifact{}})
			return
		}
		h.config.Logger.Error(r.Context(), "list artifacts failed", "conversation_id", conversationID, "error", err)
		h.jsonError(w, "Failed to list artifacts", http.StatusInternalServerError)
		return
	}

	artifacts := []models.Artifact{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !models.AllowedArtifactExtensions[strings.ToLower(path.Ext(name))] {
			continue
		}
		a := models.Artifact{
			Filename:  name,
			Kind:      models.KindForFilename(name),
			URL:       models.ArtifactURL(conversationID, name),
			MediaType: models.MediaTypeForFilename(name),
		}
		if info, err := entry.Info(); err == nil {
			size := info.Size()
			a.SizeBytes = &size
		}
		artifacts = append(artifacts, a)
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Filename < artifacts[j].Filename })

	h.jsonResponse(w, map[string]any{"artifacts": artifacts})
}

func (h *Handler) downloadArtifact(w http.ResponseWriter, r *http.Request, conversationID, filename string) {
	// Refuse anything that is not a bare filename. Artifact URLs are
	// always /api/artifacts/{conversation}/{filename}.
	if filename != filepath.Base(filename) || strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		h.jsonError(w, "Invalid filename", http.StatusBadRequest)
		return
	}
	if !models.AllowedArtifactExtensions[strings.ToLower(path.Ext(filename))] {
		h.jsonError(w, "File type not allowed", http.StatusForbidden)
		return
	}

	full := filepath.Join(h.config.ArtifactsRoot, conversationID, filename)
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		h.jsonError(w, "Artifact not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", models.MediaTypeForFilename(filename))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, full)
}
