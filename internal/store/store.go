// Package store persists conversations and their message history.
package store

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/haasonsaas/scribe/pkg/models"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Store is the interface for conversation persistence.
type Store interface {
	// CreateConversation creates a conversation with the given ID and title.
	CreateConversation(ctx context.Context, id, title string) (*models.Conversation, error)

	// EnsureConversation creates the conversation if it does not exist,
	// deriving a title from seedContent. Returns whether it was created.
	EnsureConversation(ctx context.Context, id, seedContent string) (bool, error)

	// ConversationExists reports whether the conversation exists.
	ConversationExists(ctx context.Context, id string) (bool, error)

	// GetConversation returns a conversation by ID, or ErrNotFound.
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)

	// ListConversations returns summaries of all conversations, most
	// recently updated first.
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)

	// RenameConversation updates the conversation title, or ErrNotFound.
	RenameConversation(ctx context.Context, id, title string) error

	// DeleteConversation removes a conversation and its messages, or
	// ErrNotFound.
	DeleteConversation(ctx context.Context, id string) error

	// AddMessage appends a message to a conversation's history and bumps
	// the conversation's updated time.
	AddMessage(ctx context.Context, msg *models.Message) error

	// GetHistory returns a conversation's messages in insertion order.
	GetHistory(ctx context.Context, conversationID string) ([]models.Message, error)

	// Close releases underlying resources.
	Close() error
}

// maxTitleLen bounds auto-derived conversation titles.
const maxTitleLen = 64

// maxPreviewLen bounds summary previews of the latest message.
const maxPreviewLen = 160

// previewFromContent truncates message content for a conversation summary
// on a rune boundary.
func previewFromContent(content string) string {
	if utf8.RuneCountInString(content) <= maxPreviewLen {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxPreviewLen])
}

// TitleFromContent derives a conversation title from the first user
// message: first line, trimmed, truncated on a rune boundary.
func TitleFromContent(content string) string {
	title := strings.TrimSpace(content)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	if title == "" {
		return "New conversation"
	}
	if utf8.RuneCountInString(title) <= maxTitleLen {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:maxTitleLen])) + "…"
}
