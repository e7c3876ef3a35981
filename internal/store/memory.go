package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/scribe/pkg/models"
)

// MemoryStore implements Store with in-process maps. Used by tests and
// by the CLI when no database is wanted.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	messages      map[string][]models.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.Message),
	}
}

func (s *MemoryStore) CreateConversation(ctx context.Context, id, title string) (*models.Conversation, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if title == "" {
		title = "New conversation"
	}
	now := time.Now().UTC()

	conv := &models.Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.conversations[id] = conv
	s.mu.Unlock()

	out := *conv
	return &out, nil
}

func (s *MemoryStore) EnsureConversation(ctx context.Context, id, seedContent string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; ok {
		return false, nil
	}
	now := time.Now().UTC()
	s.conversations[id] = &models.Conversation{
		ID:        id,
		Title:     TitleFromContent(seedContent),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return true, nil
}

func (s *MemoryStore) ConversationExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	_, ok := s.conversations[id]
	s.mu.RUnlock()
	return ok, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	out := *conv
	msgs := s.messages[id]
	out.Messages = make([]*models.Message, len(msgs))
	for i := range msgs {
		m := msgs[i]
		out.Messages[i] = &m
	}
	return &out, nil
}

func (s *MemoryStore) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]models.ConversationSummary, 0, len(s.conversations))
	for id, conv := range s.conversations {
		sum := models.ConversationSummary{
			ID:           id,
			Title:        conv.Title,
			MessageCount: len(s.messages[id]),
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
		}
		if msgs := s.messages[id]; len(msgs) > 0 {
			sum.Preview = previewFromContent(msgs[len(msgs)-1].Content)
		}
		summaries = append(summaries, sum)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (s *MemoryStore) RenameConversation(ctx context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.Title = title
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) AddMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	if conv, ok := s.conversations[msg.ConversationID]; ok {
		conv.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *MemoryStore) GetHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
