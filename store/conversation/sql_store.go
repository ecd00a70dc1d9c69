package conversation

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE raised by the pair/listing unique index.
const uniqueViolation = "23505"

// SQLStore implements Store using a database/sql connection.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, participant_1, participant_2, listing_id, last_message_at, created_at
		FROM conversations
		WHERE id = $1
	`

	return scanConversation(s.db.QueryRowContext(ctx, query, id))
}

// FindBetween matches the unordered pair and the exact listing scope; a nil
// listingID only matches conversations without a listing. If a race ever left
// duplicates behind, the oldest row is canonical.
func (s *SQLStore) FindBetween(ctx context.Context, userAID, userBID string, listingID *string) (*Conversation, error) {
	query := `
		SELECT id, participant_1, participant_2, listing_id, last_message_at, created_at
		FROM conversations
		WHERE ((participant_1 = $1 AND participant_2 = $2)
			OR (participant_1 = $2 AND participant_2 = $1))
			AND listing_id IS NOT DISTINCT FROM $3::uuid
		ORDER BY created_at ASC
		LIMIT 1
	`

	return scanConversation(s.db.QueryRowContext(ctx, query, userAID, userBID, listingID))
}

func (s *SQLStore) Create(ctx context.Context, convo *Conversation) error {
	query := `
		INSERT INTO conversations (participant_1, participant_2, listing_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query, convo.Participant1, convo.Participant2, convo.ListingID).
		Scan(&convo.ID, &convo.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return err
	}

	convo.LastMessageAt = nil
	return nil
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var (
		convo         Conversation
		listingID     sql.NullString
		lastMessageAt sql.NullTime
	)
	if err := row.Scan(&convo.ID, &convo.Participant1, &convo.Participant2, &listingID, &lastMessageAt, &convo.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	if listingID.Valid {
		convo.ListingID = &listingID.String
	}
	if lastMessageAt.Valid {
		convo.LastMessageAt = &lastMessageAt.Time
	}
	return &convo, nil
}
