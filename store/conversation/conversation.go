package conversation

import (
	"context"
	"errors"
	"time"
)

// Conversation is a thread between two participants, optionally about one listing.
// The participant pair is unordered: (A, B) and (B, A) name the same conversation.
type Conversation struct {
	ID            string     `json:"id"`
	Participant1  string     `json:"participant_1"`
	Participant2  string     `json:"participant_2"`
	ListingID     *string    `json:"listing_id"`
	LastMessageAt *time.Time `json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// HasParticipant reports whether userID is one side of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.Participant1 == userID || c.Participant2 == userID
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID string) string {
	if c.Participant1 == userID {
		return c.Participant2
	}
	return c.Participant1
}

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrDuplicate            = errors.New("conversation already exists for participants and listing")
)

// Store defines conversation persistence operations.
type Store interface {
	Get(ctx context.Context, id string) (*Conversation, error)
	FindBetween(ctx context.Context, userAID, userBID string, listingID *string) (*Conversation, error)
	Create(ctx context.Context, convo *Conversation) error
}
