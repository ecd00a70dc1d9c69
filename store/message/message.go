package message

import (
	"context"
	"errors"
	"time"
)

// Message is one chat message. Content holds what recipients see; when the
// content filter redacted something, FilteredContent keeps the raw text.
type Message struct {
	ID              string    `json:"id"`
	ConversationID  string    `json:"conversation_id"`
	SenderID        string    `json:"sender_id"`
	Content         string    `json:"content"`
	IsFiltered      bool      `json:"is_filtered"`
	FilteredContent *string   `json:"filtered_content"`
	IsRead          bool      `json:"is_read"`
	CreatedAt       time.Time `json:"created_at"`
}

var (
	ErrMessageNotFound      = errors.New("message not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("sender is not a participant in the conversation")
	ErrForbidden            = errors.New("operation rejected by access policy")
)

// Store defines message persistence operations.
type Store interface {
	// Create inserts msg and advances the conversation's last_message_at in
	// one transaction. On error nothing is written.
	Create(ctx context.Context, msg *Message) error
	Get(ctx context.Context, id string) (*Message, error)
	// MarkRead flags every message in the conversation not sent by readerID
	// as read and returns how many rows changed.
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)
}
