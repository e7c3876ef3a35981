package stream

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExtractSingleArtifact(t *testing.T) {
	result := map[string]any{
		"status": "created",
		"artifact": map[string]any{
			"filename":   "a.md",
			"size_bytes": float64(12),
		},
	}

	got := ExtractArtifacts(result, "conv-1", "")
	if len(got) != 1 {
		t.Fatalf("got %d artifacts, want 1", len(got))
	}
	a := got[0]
	if a.URL != "/api/artifacts/conv-1/a.md" {
		t.Errorf("URL = %q", a.URL)
	}
	if a.MediaType != "text/markdown" {
		t.Errorf("MediaType = %q", a.MediaType)
	}
	if a.Kind != "md" {
		t.Errorf("Kind = %q", a.Kind)
	}
	if a.SizeBytes == nil || *a.SizeBytes != 12 {
		t.Errorf("SizeBytes = %v", a.SizeBytes)
	}
}

func TestExtractArtifactList(t *testing.T) {
	result := map[string]any{
		"artifacts": []any{
			map[string]any{"filename": "one.csv"},
			map[string]any{"filename": "two.pdf"},
			"not an artifact",
		},
	}

	got := ExtractArtifacts(result, "conv-2", "")
	if len(got) != 2 {
		t.Fatalf("got %d artifacts, want 2", len(got))
	}
	if got[0].MediaType != "text/csv" || got[1].MediaType != "application/pdf" {
		t.Errorf("media types = %q, %q", got[0].MediaType, got[1].MediaType)
	}
}

func TestExtractResultItselfAsArtifact(t *testing.T) {
	result := map[string]any{
		"url": "/api/artifacts/conv-3/report.docx",
	}

	got := ExtractArtifacts(result, "conv-3", "")
	if len(got) != 1 {
		t.Fatalf("got %d artifacts, want 1", len(got))
	}
	if got[0].Filename != "report.docx" {
		t.Errorf("Filename = %q, want derived from URL", got[0].Filename)
	}
	if got[0].URL != "/api/artifacts/conv-3/report.docx" {
		t.Errorf("URL = %q", got[0].URL)
	}
}

func TestExtractStatsFileForSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := map[string]any{
		"artifact": map[string]any{"filename": "notes.txt"},
	}
	got := ExtractArtifacts(result, "conv-4", dir)
	if len(got) != 1 {
		t.Fatal("want 1 artifact")
	}
	if got[0].SizeBytes == nil || *got[0].SizeBytes != 11 {
		t.Errorf("SizeBytes = %v, want 11 from stat", got[0].SizeBytes)
	}
}

func TestExtractIgnoresNonArtifactResults(t *testing.T) {
	cases := []any{
		"a plain string",
		float64(42),
		[]any{"a", "b"},
		map[string]any{"status": "ok"},
		map[string]any{"artifact": "not an object"},
	}
	for _, result := range cases {
		if got := ExtractArtifacts(result, "conv-5", ""); len(got) != 0 {
			t.Errorf("ExtractArtifacts(%#v) = %v, want none", result, got)
		}
	}
}
