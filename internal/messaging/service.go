// Package messaging implements conversation get-or-create, filtered message
// sending and read receipts on top of the conversation and message stores.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tcgvault/messaging/internal/cache"
	"github.com/tcgvault/messaging/internal/filter"
	"github.com/tcgvault/messaging/store/conversation"
	"github.com/tcgvault/messaging/store/message"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrStorage        = errors.New("storage error")
)

const defaultIdempotencyTTL = 24 * time.Hour

// Event describes a committed message for delivery to the other participant.
type Event struct {
	ConversationID string           `json:"conversation_id"`
	RecipientID    string           `json:"recipient_id"`
	Message        *message.Message `json:"message"`
}

// Notifier is told about every committed message. Delivery is best effort.
type Notifier interface {
	MessageCreated(ctx context.Context, ev Event) error
}

// SendMessageInput carries a send_message request.
type SendMessageInput struct {
	CallerID       string
	ConversationID string
	Content        string
	IdempotencyKey string
}

// SendResult is the outcome of a successful send.
type SendResult struct {
	Message     *message.Message
	WasFiltered bool
	Reason      string
}

// Service coordinates the content filter and the stores.
type Service struct {
	conversations  conversation.Store
	messages       message.Store
	filter         *filter.Filter
	cache          cache.Cache
	idempotencyTTL time.Duration
	notifier       Notifier
}

// Option configures a Service.
type Option func(*Service)

// WithFilter replaces the default content filter.
func WithFilter(f *filter.Filter) Option {
	return func(s *Service) {
		s.filter = f
	}
}

// WithIdempotency enables send_message idempotency keys backed by c.
func WithIdempotency(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

// WithNotifier registers the receiver of message-created events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// NewService creates a Service.
func NewService(conversations conversation.Store, messages message.Store, opts ...Option) *Service {
	s := &Service{
		conversations:  conversations,
		messages:       messages,
		filter:         filter.New(),
		idempotencyTTL: defaultIdempotencyTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Filter runs text through the content filter without storing anything.
func (s *Service) Filter(text string) filter.Result {
	return s.filter.Apply(text)
}

// StartConversation returns the conversation between callerID and recipientID
// for the listing scope, creating it when none exists. A nil or empty
// listingID is the "no listing" scope, not a wildcard.
func (s *Service) StartConversation(ctx context.Context, callerID, recipientID string, listingID *string) (string, bool, error) {
	if recipientID == "" {
		return "", false, fmt.Errorf("%w: recipientId is required", ErrInvalidRequest)
	}
	if recipientID == callerID {
		return "", false, fmt.Errorf("%w: cannot start a conversation with yourself", ErrInvalidRequest)
	}
	if listingID != nil && *listingID == "" {
		listingID = nil
	}

	existing, err := s.conversations.FindBetween(ctx, callerID, recipientID, listingID)
	if err == nil {
		return existing.ID, false, nil
	}
	if !errors.Is(err, conversation.ErrConversationNotFound) {
		return "", false, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	convo := &conversation.Conversation{
		Participant1: callerID,
		Participant2: recipientID,
		ListingID:    listingID,
	}
	err = s.conversations.Create(ctx, convo)
	if errors.Is(err, conversation.ErrDuplicate) {
		// Lost a create race; the unique index kept the other request's row.
		existing, err = s.conversations.FindBetween(ctx, callerID, recipientID, listingID)
		if err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		return existing.ID, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return convo.ID, true, nil
}

// SendMessage filters the content and stores the message. The conversation's
// last_message_at only moves after the insert succeeded, in the same
// transaction.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*SendResult, error) {
	if in.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversationId is required", ErrInvalidRequest)
	}

	key := s.idempotencyKey(in)
	if key != "" {
		if res, ok := s.replay(ctx, key, in); ok {
			return res, nil
		}
	}

	res := s.filter.Apply(in.Content)
	msg := &message.Message{
		ConversationID: in.ConversationID,
		SenderID:       in.CallerID,
		Content:        res.Text,
		IsFiltered:     res.WasFiltered,
	}
	if res.WasFiltered {
		raw := in.Content
		msg.FilteredContent = &raw
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, storeError(err)
	}

	if key != "" {
		if err := s.cache.Set(ctx, key, msg.ID, s.idempotencyTTL); err != nil {
			log.Printf("messaging: remember idempotency key for message %s: %v", msg.ID, err)
		}
	}
	s.notify(ctx, msg)

	return &SendResult{Message: msg, WasFiltered: res.WasFiltered, Reason: res.Reason}, nil
}

// MarkRead marks the other participant's messages in the conversation as read.
func (s *Service) MarkRead(ctx context.Context, callerID, conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("%w: conversationId is required", ErrInvalidRequest)
	}
	if _, err := s.messages.MarkRead(ctx, conversationID, callerID); err != nil {
		return storeError(err)
	}
	return nil
}

func (s *Service) idempotencyKey(in SendMessageInput) string {
	if s.cache == nil || in.IdempotencyKey == "" {
		return ""
	}
	return "idem:send:" + in.CallerID + ":" + in.IdempotencyKey
}

// replay returns the message stored under key by an earlier attempt. Any cache
// or lookup failure falls back to a normal send.
func (s *Service) replay(ctx context.Context, key string, in SendMessageInput) (*SendResult, bool) {
	id, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			log.Printf("messaging: idempotency lookup failed: %v", err)
		}
		return nil, false
	}

	msg, err := s.messages.Get(ctx, id)
	if err != nil {
		log.Printf("messaging: idempotent replay of message %s failed: %v", id, err)
		return nil, false
	}
	if msg.SenderID != in.CallerID || msg.ConversationID != in.ConversationID {
		return nil, false
	}

	res := &SendResult{Message: msg, WasFiltered: msg.IsFiltered}
	if msg.IsFiltered {
		res.Reason = filter.ReasonContactInfo
	}
	return res, true
}

func (s *Service) notify(ctx context.Context, msg *message.Message) {
	if s.notifier == nil {
		return
	}
	convo, err := s.conversations.Get(ctx, msg.ConversationID)
	if err != nil {
		log.Printf("messaging: load conversation %s for notification: %v", msg.ConversationID, err)
		return
	}
	ev := Event{
		ConversationID: msg.ConversationID,
		RecipientID:    convo.Other(msg.SenderID),
		Message:        msg,
	}
	if err := s.notifier.MessageCreated(ctx, ev); err != nil {
		log.Printf("messaging: notify recipient of message %s: %v", msg.ID, err)
	}
}

func storeError(err error) error {
	switch {
	case errors.Is(err, message.ErrNotParticipant), errors.Is(err, message.ErrForbidden):
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	case errors.Is(err, message.ErrConversationNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
}
