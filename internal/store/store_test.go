package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/scribe/internal/observability"
	"github.com/haasonsaas/scribe/pkg/models"
)

// openStores returns every Store implementation under test. Both must
// behave identically against the interface contract.
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func TestConversationLifecycle(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			conv, err := s.CreateConversation(ctx, "conv-1", "Quarterly report")
			if err != nil {
				t.Fatalf("CreateConversation: %v", err)
			}
			if conv.ID != "conv-1" || conv.Title != "Quarterly report" {
				t.Errorf("created conversation = %+v", conv)
			}

			exists, err := s.ConversationExists(ctx, "conv-1")
			if err != nil || !exists {
				t.Errorf("ConversationExists = %v, %v; want true, nil", exists, err)
			}
			exists, err = s.ConversationExists(ctx, "missing")
			if err != nil || exists {
				t.Errorf("ConversationExists(missing) = %v, %v; want false, nil", exists, err)
			}

			if err := s.RenameConversation(ctx, "conv-1", "Q3 report"); err != nil {
				t.Errorf("RenameConversation: %v", err)
			}
			got, err := s.GetConversation(ctx, "conv-1")
			if err != nil {
				t.Fatalf("GetConversation: %v", err)
			}
			if got.Title != "Q3 report" {
				t.Errorf("title after rename = %q", got.Title)
			}

			if err := s.DeleteConversation(ctx, "conv-1"); err != nil {
				t.Errorf("DeleteConversation: %v", err)
			}
			if _, err := s.GetConversation(ctx, "conv-1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetConversation after delete: %v, want ErrNotFound", err)
			}
			if err := s.DeleteConversation(ctx, "conv-1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("double delete: %v, want ErrNotFound", err)
			}
			if err := s.RenameConversation(ctx, "conv-1", "x"); !errors.Is(err, ErrNotFound) {
				t.Errorf("rename deleted: %v, want ErrNotFound", err)
			}
		})
	}
}

func TestEnsureConversation(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			created, err := s.EnsureConversation(ctx, "conv-e", "Write me a report\nwith details")
			if err != nil {
				t.Fatalf("EnsureConversation: %v", err)
			}
			if !created {
				t.Error("first EnsureConversation: created = false")
			}

			conv, err := s.GetConversation(ctx, "conv-e")
			if err != nil {
				t.Fatalf("GetConversation: %v", err)
			}
			if conv.Title != "Write me a report" {
				t.Errorf("derived title = %q", conv.Title)
			}

			created, err = s.EnsureConversation(ctx, "conv-e", "different seed")
			if err != nil {
				t.Fatalf("second EnsureConversation: %v", err)
			}
			if created {
				t.Error("second EnsureConversation: created = true")
			}
		})
	}
}

func TestMessageHistory(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := s.CreateConversation(ctx, "conv-m", "t"); err != nil {
				t.Fatal(err)
			}

			size := int64(42)
			msgs := []*models.Message{
				{ConversationID: "conv-m", Role: models.RoleUser, Content: "hello"},
				{
					ConversationID: "conv-m",
					Role:           models.RoleAssistant,
					Content:        "done",
					Artifacts: []models.Artifact{{
						Filename:  "report.md",
						Kind:      "md",
						URL:       "/api/artifacts/conv-m/report.md",
						SizeBytes: &size,
						MediaType: "text/markdown",
					}},
				},
			}
			for _, m := range msgs {
				if err := s.AddMessage(ctx, m); err != nil {
					t.Fatalf("AddMessage: %v", err)
				}
				if m.ID == "" {
					t.Error("AddMessage did not assign an ID")
				}
			}

			history, err := s.GetHistory(ctx, "conv-m")
			if err != nil {
				t.Fatalf("GetHistory: %v", err)
			}
			if len(history) != 2 {
				t.Fatalf("len(history) = %d, want 2", len(history))
			}
			if history[0].Role != models.RoleUser || history[0].Content != "hello" {
				t.Errorf("history[0] = %+v", history[0])
			}
			if len(history[1].Artifacts) != 1 {
				t.Fatalf("history[1].Artifacts = %v", history[1].Artifacts)
			}
			art := history[1].Artifacts[0]
			if art.Filename != "report.md" || art.URL != "/api/artifacts/conv-m/report.md" {
				t.Errorf("artifact round trip = %+v", art)
			}
			if art.SizeBytes == nil || *art.SizeBytes != 42 {
				t.Errorf("artifact size = %v", art.SizeBytes)
			}
		})
	}
}

func TestListConversations(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.CreateConversation(ctx, "old", "Old"); err != nil {
				t.Fatal(err)
			}
			if _, err := s.CreateConversation(ctx, "new", "New"); err != nil {
				t.Fatal(err)
			}
			if err := s.AddMessage(ctx, &models.Message{
				ConversationID: "new", Role: models.RoleUser, Content: "latest question",
			}); err != nil {
				t.Fatal(err)
			}

			list, err := s.ListConversations(ctx)
			if err != nil {
				t.Fatalf("ListConversations: %v", err)
			}
			if len(list) != 2 {
				t.Fatalf("len(list) = %d, want 2", len(list))
			}
			if list[0].ID != "new" {
				t.Errorf("list[0].ID = %q, want most recently updated first", list[0].ID)
			}
			if list[0].MessageCount != 1 {
				t.Errorf("list[0].MessageCount = %d, want 1", list[0].MessageCount)
			}
			if list[0].Preview != "latest question" {
				t.Errorf("list[0].Preview = %q", list[0].Preview)
			}
		})
	}
}

func TestPreviewTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 300)

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := s.CreateConversation(ctx, "conv-p", "t"); err != nil {
				t.Fatal(err)
			}
			if err := s.AddMessage(ctx, &models.Message{
				ConversationID: "conv-p", Role: models.RoleUser, Content: long,
			}); err != nil {
				t.Fatal(err)
			}

			list, err := s.ListConversations(ctx)
			if err != nil {
				t.Fatalf("ListConversations: %v", err)
			}
			preview := list[0].Preview
			if !utf8.ValidString(preview) {
				t.Errorf("preview is not valid UTF-8: %q", preview)
			}
			if got := utf8.RuneCountInString(preview); got != 160 {
				t.Errorf("preview runes = %d, want 160", got)
			}
		})
	}
}

func TestSQLiteRecordsQueryMetrics(t *testing.T) {
	// promauto registers on the default registry, so NewMetrics may only
	// be called once per test binary.
	metrics := observability.NewMetrics()

	s, err := NewSQLiteStore(":memory:", metrics)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	if _, err := s.CreateConversation(ctx, "conv-q", "t"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddMessage(ctx, &models.Message{
		ConversationID: "conv-q", Role: models.RoleUser, Content: "hello",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetHistory(ctx, "conv-q"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		operation string
		table     string
		want      float64
	}{
		{"insert", "conversations", 1},
		{"insert", "messages", 1},
		{"select", "messages", 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(
			metrics.DatabaseQueryCounter.WithLabelValues(tt.operation, tt.table, "success"),
		)
		if got != tt.want {
			t.Errorf("%s %s queries = %v, want %v", tt.operation, tt.table, got, tt.want)
		}
	}
}

func TestTitleFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain", "Write a report", "Write a report"},
		{"first line only", "Write a report\nwith three sections", "Write a report"},
		{"whitespace", "   \n\n  ", "New conversation"},
		{"empty", "", "New conversation"},
		{
			"truncated",
			"This opening message is deliberately much longer than the sixty four rune limit for titles",
			"This opening message is deliberately much longer than the sixty…",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TitleFromContent(tt.content); got != tt.want {
				t.Errorf("TitleFromContent(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}
