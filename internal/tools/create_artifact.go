package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/scribe/internal/runctx"
	"github.com/haasonsaas/scribe/pkg/models"
)

// CreateArtifactTool writes markdown documents into the active request's
// artifact directory. Standalone invocations without a request scope land
// in the fallback directory instead.
type CreateArtifactTool struct{}

// NewCreateArtifactTool creates the artifact creation tool.
func NewCreateArtifactTool() *CreateArtifactTool {
	return &CreateArtifactTool{}
}

func (t *CreateArtifactTool) Name() string {
	return "create_artifact"
}

func (t *CreateArtifactTool) Description() string {
	return `Create a markdown document artifact that will be displayed to the user.
Use this when the user asks you to create, generate, or write a document, report,
guide, plan, strategy, or any structured content.

The artifact will appear in the chat as a separate artifact card.

Important response rule:
- Do not include file names, URLs, or download/status labels in assistant text.
- Keep assistant text focused on the substantive content only.`
}

func (t *CreateArtifactTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"title": {
				"type": "string",
				"description": "The title of the artifact"
			},
			"content": {
				"type": "string",
				"description": "The full markdown content of the artifact"
			},
			"artifact_type": {
				"type": "string",
				"description": "Type of artifact: document, report, guide, plan, code"
			}
		},
		"required": ["title", "content"]
	}`)
}

type createArtifactParams struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	ArtifactType string `json:"artifact_type"`
}

var (
	unsafeChars = regexp.MustCompile(`[^\w\s-]`)
	dashRuns    = regexp.MustCompile(`[-\s]+`)
)

// SanitizeFilename converts a title to a safe filename stem: lowercase,
// unsafe characters stripped, whitespace collapsed to hyphens, capped at
// 50 bytes.
func SanitizeFilename(name string) string {
	safe := unsafeChars.ReplaceAllString(strings.ToLower(name), "")
	safe = dashRuns.ReplaceAllString(safe, "-")
	safe = strings.Trim(safe, "-")
	if len(safe) > 50 {
		safe = safe[:50]
	}
	return safe
}

func (t *CreateArtifactTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var p createArtifactParams
	if err := json.Unmarshal(params, &p); err != nil {
		return &Result{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if p.ArtifactType == "" {
		p.ArtifactType = "document"
	}

	outputDir := runctx.ArtifactDir(ctx)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return &Result{Content: fmt.Sprintf("create artifact directory: %v", err), IsError: true}, nil
	}

	base := SanitizeFilename(p.Title)
	if base == "" {
		base = "artifact"
	}
	now := time.Now().UTC()
	suffix := ""
	scope, inScope := runctx.Current(ctx)
	if inScope && scope.RunID != "" {
		suffix = "-" + scope.RunID
	}
	filename := fmt.Sprintf("%s%s-%s-%s.md",
		base, suffix, now.Format("20060102-150405"), uuid.NewString()[:8])

	fullContent := fmt.Sprintf("---\ntitle: %s\ntype: %s\ncreated: %s\n---\n\n%s\n",
		p.Title, p.ArtifactType, now.Format(time.RFC3339), p.Content)

	path := filepath.Join(outputDir, filename)
	if err := os.WriteFile(path, []byte(fullContent), 0o644); err != nil {
		return &Result{Content: fmt.Sprintf("write artifact: %v", err), IsError: true}, nil
	}

	artifact := map[string]any{
		"filename":  filename,
		"type":      "md",
		"mediaType": "text/markdown",
	}
	if info, err := os.Stat(path); err == nil {
		artifact["size_bytes"] = info.Size()
	}
	if inScope && scope.ConversationID != "" {
		artifact["url"] = models.ArtifactURL(scope.ConversationID, filename)
	}

	out, err := json.Marshal(map[string]any{
		"status":   "created",
		"message":  "Created artifact: " + p.Title,
		"artifact": artifact,
	})
	if err != nil {
		return &Result{Content: fmt.Sprintf("encode result: %v", err), IsError: true}, nil
	}

	return &Result{Content: string(out)}, nil
}
