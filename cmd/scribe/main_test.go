package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCommandWiring(t *testing.T) {
	root := buildRootCmd()

	want := []string{"serve", "conversations", "artifact", "skills"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestArtifactCreateWritesToFallbackDir(t *testing.T) {
	fallback := t.TempDir()
	cfg := writeTestConfig(t, fmt.Sprintf("artifacts:\n  fallback_dir: %s\n", fallback))

	root := buildRootCmd()
	root.SetArgs([]string{"artifact", "create", "-c", cfg, "--title", "Launch Plan"})
	root.SetIn(strings.NewReader("# Launch\n\nShip it."))
	var out bytes.Buffer
	root.SetOut(&out)

	if err := root.Execute(); err != nil {
		t.Fatalf("artifact create failed: %v", err)
	}

	entries, err := os.ReadDir(fallback)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("fallback dir entries = %d, want 1", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "launch-plan") || !strings.HasSuffix(name, ".md") {
		t.Errorf("artifact filename = %q", name)
	}
	data, err := os.ReadFile(filepath.Join(fallback, name))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Ship it.") {
		t.Errorf("artifact content missing body:\n%s", data)
	}
}

func TestConversationsListEmpty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "scribe.db")
	cfg := writeTestConfig(t, fmt.Sprintf("storage:\n  path: %s\n", db))

	root := buildRootCmd()
	root.SetArgs([]string{"conversations", "list", "-c", cfg})
	var out bytes.Buffer
	root.SetOut(&out)

	if err := root.Execute(); err != nil {
		t.Fatalf("conversations list failed: %v", err)
	}
	if !strings.Contains(out.String(), "No conversations.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestServeRejectsUnknownProvider(t *testing.T) {
	cfg := writeTestConfig(t, "engine:\n  provider: nope\nstorage:\n  path: \":memory:\"\n")

	err := runServe(t.Context(), cfg, false)
	if err == nil || !strings.Contains(err.Error(), "unknown engine provider") {
		t.Errorf("err = %v, want unknown engine provider", err)
	}
}
