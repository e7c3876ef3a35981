package web

import (
	"net/http"
)

// SkillSummary is the JSON shape for one listed skill.
type SkillSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// apiSkills handles GET /api/skills.
func (h *Handler) apiSkills(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summaries := []SkillSummary{}
	if h.config.SkillRegistry != nil {
		for _, s := range h.config.SkillRegistry.List() {
			summaries = append(summaries, SkillSummary{Name: s.Name, Description: s.Description})
		}
	}
	h.jsonResponse(w, map[string]any{
		"skills": summaries,
		"total":  len(summaries),
	})
}

// apiSkillsRefresh handles POST /api/skills/refresh.
func (h *Handler) apiSkillsRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.config.SkillRegistry == nil {
		h.jsonError(w, "Skills not configured", http.StatusNotFound)
		return
	}

	if err := h.config.SkillRegistry.Rescan(r.Context()); err != nil {
		h.config.Logger.Error(r.Context(), "skill rescan failed", "error", err)
		h.jsonError(w, "Failed to refresh skills", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, map[string]any{
		"status": "refreshed",
		"total":  len(h.config.SkillRegistry.List()),
	})
}
