package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/scribe/internal/observability"
	"github.com/haasonsaas/scribe/pkg/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	metrics *observability.Metrics

	// Prepared statements for the hot paths
	stmtCreateConv  *sql.Stmt
	stmtGetConv     *sql.Stmt
	stmtConvExists  *sql.Stmt
	stmtRenameConv  *sql.Stmt
	stmtDeleteConv  *sql.Stmt
	stmtTouchConv   *sql.Stmt
	stmtAddMessage  *sql.Stmt
	stmtGetHistory  *sql.Stmt
	stmtListConvs   *sql.Stmt
	stmtDeleteMsgs  *sql.Stmt
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	artifacts       TEXT,
	created_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, created_at);
`

// NewSQLiteStore opens (or creates) the database at path and prepares
// statements. Use ":memory:" for an in-process database. Metrics may
// be nil.
func NewSQLiteStore(path string, metrics *observability.Metrics) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent request handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &SQLiteStore{db: db, metrics: metrics}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.stmtCreateConv, err = s.db.Prepare(`
		INSERT INTO conversations (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare create conversation: %w", err)
	}

	s.stmtGetConv, err = s.db.Prepare(`
		SELECT id, title, created_at, updated_at
		FROM conversations WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get conversation: %w", err)
	}

	s.stmtConvExists, err = s.db.Prepare(`
		SELECT 1 FROM conversations WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare conversation exists: %w", err)
	}

	s.stmtRenameConv, err = s.db.Prepare(`
		UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare rename conversation: %w", err)
	}

	s.stmtDeleteConv, err = s.db.Prepare(`
		DELETE FROM conversations WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete conversation: %w", err)
	}

	s.stmtTouchConv, err = s.db.Prepare(`
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare touch conversation: %w", err)
	}

	s.stmtAddMessage, err = s.db.Prepare(`
		INSERT INTO messages (id, conversation_id, role, content, artifacts, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare add message: %w", err)
	}

	s.stmtGetHistory, err = s.db.Prepare(`
		SELECT id, conversation_id, role, content, artifacts, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get history: %w", err)
	}

	s.stmtListConvs, err = s.db.Prepare(`
		SELECT c.id, c.title, c.created_at, c.updated_at,
			COUNT(m.id) AS message_count,
			COALESCE((
				SELECT content FROM messages
				WHERE conversation_id = c.id
				ORDER BY created_at DESC, rowid DESC LIMIT 1
			), '') AS preview
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.updated_at DESC
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare list conversations: %w", err)
	}

	s.stmtDeleteMsgs, err = s.db.Prepare(`
		DELETE FROM messages WHERE conversation_id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete messages: %w", err)
	}

	return nil
}

// record reports one query to the metrics registry, if any.
func (s *SQLiteStore) record(operation, table string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordDatabaseQuery(operation, table, status, time.Since(start).Seconds())
}

// CreateConversation creates a conversation with the given ID and title.
func (s *SQLiteStore) CreateConversation(ctx context.Context, id, title string) (*models.Conversation, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if title == "" {
		title = "New conversation"
	}
	now := time.Now().UTC()

	start := time.Now()
	_, err := s.stmtCreateConv.ExecContext(ctx, id, title, now, now)
	s.record("insert", "conversations", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return &models.Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// EnsureConversation creates the conversation if missing, deriving the
// title from seedContent.
func (s *SQLiteStore) EnsureConversation(ctx context.Context, id, seedContent string) (bool, error) {
	exists, err := s.ConversationExists(ctx, id)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if _, err := s.CreateConversation(ctx, id, TitleFromContent(seedContent)); err != nil {
		return false, err
	}
	return true, nil
}

// ConversationExists reports whether the conversation exists.
func (s *SQLiteStore) ConversationExists(ctx context.Context, id string) (bool, error) {
	var one int
	start := time.Now()
	err := s.stmtConvExists.QueryRowContext(ctx, id).Scan(&one)
	s.record("select", "conversations", start, nil)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check conversation: %w", err)
	}
	return true, nil
}

// GetConversation returns the conversation with its full message history.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	start := time.Now()
	err := s.stmtGetConv.QueryRowContext(ctx, id).Scan(
		&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt,
	)
	s.record("select", "conversations", start, nil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	history, err := s.GetHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = make([]*models.Message, len(history))
	for i := range history {
		conv.Messages[i] = &history[i]
	}

	return &conv, nil
}

// ListConversations returns summaries ordered by recency.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	start := time.Now()
	rows, err := s.stmtListConvs.QueryContext(ctx)
	s.record("select", "conversations", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	summaries := []models.ConversationSummary{}
	for rows.Next() {
		var sum models.ConversationSummary
		if err := rows.Scan(
			&sum.ID, &sum.Title, &sum.CreatedAt, &sum.UpdatedAt,
			&sum.MessageCount, &sum.Preview,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		sum.Preview = previewFromContent(sum.Preview)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// RenameConversation updates the conversation title.
func (s *SQLiteStore) RenameConversation(ctx context.Context, id, title string) error {
	start := time.Now()
	res, err := s.stmtRenameConv.ExecContext(ctx, title, time.Now().UTC(), id)
	s.record("update", "conversations", start, err)
	if err != nil {
		return fmt.Errorf("failed to rename conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversation removes a conversation and its messages.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	// Explicit delete of messages keeps behavior consistent even when
	// the connection was opened without foreign_keys.
	start := time.Now()
	if _, err := s.stmtDeleteMsgs.ExecContext(ctx, id); err != nil {
		s.record("delete", "messages", start, err)
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	s.record("delete", "messages", start, nil)

	start = time.Now()
	res, err := s.stmtDeleteConv.ExecContext(ctx, id)
	s.record("delete", "conversations", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMessage appends a message and bumps the conversation's updated time.
func (s *SQLiteStore) AddMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	var artifactsJSON sql.NullString
	if len(msg.Artifacts) > 0 {
		data, err := json.Marshal(msg.Artifacts)
		if err != nil {
			return fmt.Errorf("failed to marshal artifacts: %w", err)
		}
		artifactsJSON = sql.NullString{String: string(data), Valid: true}
	}

	start := time.Now()
	_, err := s.stmtAddMessage.ExecContext(ctx,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content,
		artifactsJSON, msg.CreatedAt,
	)
	s.record("insert", "messages", start, err)
	if err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}

	if _, err := s.stmtTouchConv.ExecContext(ctx, time.Now().UTC(), msg.ConversationID); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

// GetHistory returns a conversation's messages in insertion order.
func (s *SQLiteStore) GetHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	start := time.Now()
	rows, err := s.stmtGetHistory.QueryContext(ctx, conversationID)
	s.record("select", "messages", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		var role string
		var artifactsJSON sql.NullString
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &role, &msg.Content,
			&artifactsJSON, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = models.Role(role)
		if artifactsJSON.Valid && artifactsJSON.String != "" {
			if err := json.Unmarshal([]byte(artifactsJSON.String), &msg.Artifacts); err != nil {
				return nil, fmt.Errorf("failed to unmarshal artifacts: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Close closes the prepared statements and the database connection.
func (s *SQLiteStore) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{
		s.stmtCreateConv, s.stmtGetConv, s.stmtConvExists, s.stmtRenameConv,
		s.stmtDeleteConv, s.stmtTouchConv, s.stmtAddMessage, s.stmtGetHistory,
		s.stmtListConvs, s.stmtDeleteMsgs,
	} {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
