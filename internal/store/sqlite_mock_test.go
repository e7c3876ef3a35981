package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/haasonsaas/scribe/pkg/models"
)

func testMessage(conversationID, content string) *models.Message {
	return &models.Message{
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        content,
	}
}

// mockStore wires a SQLiteStore onto a sqlmock connection so driver
// failures can be injected. Every statement the store prepares must be
// expected up front.
func mockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}

	for i := 0; i < 10; i++ {
		mock.ExpectPrepare(".*")
	}

	s := &SQLiteStore{db: db}
	if err := s.prepareStatements(); err != nil {
		t.Fatalf("prepareStatements: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return s, mock
}

func TestAddMessageQueryError(t *testing.T) {
	s, mock := mockStore(t)

	driverErr := errors.New("disk I/O error")
	mock.ExpectExec("INSERT INTO messages").WillReturnError(driverErr)

	err := s.AddMessage(context.Background(), testMessage("conv-x", "hello"))
	if err == nil {
		t.Fatal("AddMessage: want error")
	}
	if !errors.Is(err, driverErr) {
		t.Errorf("AddMessage error = %v, want wrapped driver error", err)
	}
	if !strings.Contains(err.Error(), "failed to add message") {
		t.Errorf("AddMessage error lacks context: %v", err)
	}
}

func TestGetHistoryQueryError(t *testing.T) {
	s, mock := mockStore(t)

	driverErr := errors.New("database is locked")
	mock.ExpectQuery("SELECT .* FROM messages").WillReturnError(driverErr)

	_, err := s.GetHistory(context.Background(), "conv-x")
	if !errors.Is(err, driverErr) {
		t.Errorf("GetHistory error = %v, want wrapped driver error", err)
	}
}

func TestPrepareStatementsError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectPrepare(".*").WillReturnError(errors.New("syntax error"))

	s := &SQLiteStore{db: db}
	if err := s.prepareStatements(); err == nil {
		t.Error("prepareStatements: want error when a prepare fails")
	}
}
