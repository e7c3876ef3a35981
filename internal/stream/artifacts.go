package stream

import (
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/haasonsaas/scribe/pkg/models"
)

// ExtractArtifacts pulls artifact descriptors out of a normalized tool
// result. Only structured results are inspected: a single object under
// "artifact", a list under "artifacts", or the result itself when it
// carries a filename or url field. Descriptors are completed with a
// synthesized URL, a media type from the extension table and, when the
// result does not state a size, a stat of the file in artifactDir.
//
// Deduplication is the caller's job; the translator tracks emitted URLs
// per run.
func ExtractArtifacts(result any, conversationID, artifactDir string) []models.Artifact {
	obj, ok := result.(map[string]any)
	if !ok {
		return nil
	}

	var candidates []map[string]any
	switch {
	case isArtifactObject(obj["artifact"]):
		candidates = append(candidates, obj["artifact"].(map[string]any))
	case obj["artifacts"] != nil:
		list, ok := obj["artifacts"].([]any)
		if !ok {
			return nil
		}
		for _, item := range list {
			if isArtifactObject(item) {
				candidates = append(candidates, item.(map[string]any))
			}
		}
	case hasArtifactShape(obj):
		candidates = append(candidates, obj)
	}

	var out []models.Artifact
	for _, c := range candidates {
		if a, ok := artifactFromObject(c, conversationID, artifactDir); ok {
			out = append(out, a)
		}
	}
	return out
}

func isArtifactObject(v any) bool {
	obj, ok := v.(map[string]any)
	return ok && hasArtifactShape(obj)
}

// hasArtifactShape reports whether the object carries a filename- or
// url-like field.
func hasArtifactShape(obj map[string]any) bool {
	return stringField(obj, "filename") != "" || stringField(obj, "url") != ""
}

func artifactFromObject(obj map[string]any, conversationID, artifactDir string) (models.Artifact, bool) {
	filename := stringField(obj, "filename")
	url := stringField(obj, "url")

	if filename == "" && url != "" {
		filename = path.Base(url)
	}
	if filename == "" || filename == "." || filename == "/" {
		return models.Artifact{}, false
	}
	if url == "" {
		url = models.ArtifactURL(conversationID, filename)
	}

	a := models.Artifact{
		Filename:  filename,
		Kind:      models.KindForFilename(filename),
		URL:       url,
		MediaType: models.MediaTypeForFilename(filename),
	}

	if size, ok := sizeField(obj); ok {
		a.SizeBytes = &size
	} else if artifactDir != "" {
		if info, err := os.Stat(filepath.Join(artifactDir, filename)); err == nil && !info.IsDir() {
			size := info.Size()
			a.SizeBytes = &size
		}
	}
	return a, true
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

func sizeField(obj map[string]any) (int64, bool) {
	switch v := obj["size_bytes"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
