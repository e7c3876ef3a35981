package models

import (
	"path"
	"strings"
)

// Artifact describes a generated file the user can download.
// Descriptors are constructed once per underlying file and never mutated;
// the streaming layer deduplicates them by URL within one run.
type Artifact struct {
	// Filename is the bare file name, no directory components.
	Filename string `json:"filename"`

	// Kind is the lowercased file extension without the dot ("md", "docx").
	Kind string `json:"type"`

	// URL is the download path, always /api/artifacts/{conversation}/{filename}.
	URL string `json:"url"`

	// SizeBytes is the file size if known.
	SizeBytes *int64 `json:"size_bytes,omitempty"`

	// MediaType is the MIME type derived from the filename extension.
	MediaType string `json:"mediaType,omitempty"`
}

// ArtifactURL builds the canonical download path for an artifact.
// Every URL the core emits must match this shape; the download handler
// enforces the same shape on the way back in.
func ArtifactURL(conversationID, filename string) string {
	return "/api/artifacts/" + conversationID + "/" + filename
}

// AllowedArtifactExtensions lists the file extensions the download surface
// will serve. Anything else is refused even if a tool wrote it.
var AllowedArtifactExtensions = map[string]bool{
	".md":   true,
	".txt":  true,
	".csv":  true,
	".pdf":  true,
	".docx": true,
	".xlsx": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// MediaTypeForFilename derives a MIME type from a filename's extension.
func MediaTypeForFilename(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// KindForFilename returns the lowercased extension without the dot,
// or "file" when the name has no extension.
func KindForFilename(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		return "file"
	}
	return strings.TrimPrefix(ext, ".")
}
