package message

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// insufficientPrivilege is raised when a row-level security policy rejects a write.
const insufficientPrivilege = "42501"

// SQLStore implements Store using a database/sql connection.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(ctx context.Context, msg *Message) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// The row lock serializes concurrent sends into the same conversation.
	lookup := `
		SELECT participant_1, participant_2
		FROM conversations
		WHERE id = $1
		FOR UPDATE
	`

	var participant1, participant2 string
	if err = tx.QueryRowContext(ctx, lookup, msg.ConversationID).Scan(&participant1, &participant2); err != nil {
		if err == sql.ErrNoRows {
			err = ErrConversationNotFound
			return err
		}
		err = translate(err)
		return err
	}
	if msg.SenderID != participant1 && msg.SenderID != participant2 {
		err = ErrNotParticipant
		return err
	}

	insert := `
		INSERT INTO messages (conversation_id, sender_id, content, is_filtered, filtered_content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_read, created_at
	`

	if err = tx.QueryRowContext(ctx, insert, msg.ConversationID, msg.SenderID, msg.Content, msg.IsFiltered, msg.FilteredContent).
		Scan(&msg.ID, &msg.IsRead, &msg.CreatedAt); err != nil {
		err = translate(err)
		return err
	}

	touch := `
		UPDATE conversations
		SET last_message_at = GREATEST(COALESCE(last_message_at, $2), $2)
		WHERE id = $1
	`

	if _, err = tx.ExecContext(ctx, touch, msg.ConversationID, msg.CreatedAt); err != nil {
		err = translate(err)
		return err
	}

	if err = tx.Commit(); err != nil {
		err = translate(err)
		return err
	}

	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, is_filtered, filtered_content, is_read, created_at
		FROM messages
		WHERE id = $1
	`

	var (
		msg      Message
		original sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content,
		&msg.IsFiltered, &original, &msg.IsRead, &msg.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrMessageNotFound
		}
		return nil, translate(err)
	}
	if original.Valid {
		msg.FilteredContent = &original.String
	}
	return &msg, nil
}

func (s *SQLStore) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	query := `
		UPDATE messages m
		SET is_read = true
		FROM conversations c
		WHERE m.conversation_id = c.id
			AND c.id = $1
			AND (c.participant_1 = $2 OR c.participant_2 = $2)
			AND m.sender_id <> $2
			AND m.is_read = false
	`

	res, err := s.db.ExecContext(ctx, query, conversationID, readerID)
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}

func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == insufficientPrivilege {
		return ErrForbidden
	}
	return err
}
