package message

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return NewSQLStore(db), mock
}

func TestCreateInsertsThenTouches(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := "visit x.com/johndoe"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("conv-1").
		WillReturnRows(sqlmock.NewRows([]string{"participant_1", "participant_2"}).AddRow("user-a", "user-b"))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO messages")).
		WithArgs("conv-1", "user-a", "visit [removed]", true, raw).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_read", "created_at"}).AddRow("msg-1", false, created))
	mock.ExpectExec(regexp.QuoteMeta("SET last_message_at = GREATEST(COALESCE(last_message_at, $2), $2)")).
		WithArgs("conv-1", created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg := &Message{
		ConversationID:  "conv-1",
		SenderID:        "user-a",
		Content:         "visit [removed]",
		IsFiltered:      true,
		FilteredContent: &raw,
	}
	if err := store.Create(context.Background(), msg); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if msg.ID != "msg-1" {
		t.Errorf("expected msg-1, got %s", msg.ID)
	}
	if !msg.CreatedAt.Equal(created) {
		t.Errorf("expected created_at %v, got %v", created, msg.CreatedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateRejectsNonParticipant(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("conv-1").
		WillReturnRows(sqlmock.NewRows([]string{"participant_1", "participant_2"}).AddRow("user-a", "user-b"))
	mock.ExpectRollback()

	err := store.Create(context.Background(), &Message{ConversationID: "conv-1", SenderID: "user-c", Content: "hi"})
	if !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}

	// No insert and no timestamp update were issued.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateUnknownConversation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("conv-x").
		WillReturnRows(sqlmock.NewRows([]string{"participant_1", "participant_2"}))
	mock.ExpectRollback()

	err := store.Create(context.Background(), &Message{ConversationID: "conv-x", SenderID: "user-a", Content: "hi"})
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestCreateInsertFailureSkipsTouch(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("conv-1").
		WillReturnRows(sqlmock.NewRows([]string{"participant_1", "participant_2"}).AddRow("user-a", "user-b"))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO messages")).
		WillReturnError(&pq.Error{Code: "42501", Message: "new row violates row-level security policy"})
	mock.ExpectRollback()

	err := store.Create(context.Background(), &Message{ConversationID: "conv-1", SenderID: "user-a", Content: "hi"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGet(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM messages")).
		WithArgs("msg-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "conversation_id", "sender_id", "content", "is_filtered", "filtered_content", "is_read", "created_at"}).
			AddRow("msg-1", "conv-1", "user-a", "hello", false, nil, true, created))

	msg, err := store.Get(context.Background(), "msg-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if msg.FilteredContent != nil {
		t.Errorf("expected nil filtered_content, got %q", *msg.FilteredContent)
	}
	if !msg.IsRead {
		t.Error("expected message to be read")
	}
}

func TestGetMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM messages")).
		WithArgs("msg-404").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.Get(context.Background(), "msg-404"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestMarkRead(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("m.sender_id <> $2")).
		WithArgs("conv-1", "user-b").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.MarkRead(context.Background(), "conv-1", "user-b")
	if err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 rows, got %d", n)
	}
}
