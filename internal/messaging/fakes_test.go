package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tcgvault/messaging/internal/cache"
	"github.com/tcgvault/messaging/store/conversation"
	"github.com/tcgvault/messaging/store/message"
)

// memConversations mimics the SQL store, including the pair/listing unique index.
type memConversations struct {
	mu       sync.Mutex
	rows     []conversation.Conversation
	hideOnce bool
}

func sameListing(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memConversations) Get(_ context.Context, id string) (*conversation.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, conversation.ErrConversationNotFound
}

func (m *memConversations) FindBetween(_ context.Context, a, b string, listingID *string) (*conversation.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hideOnce {
		m.hideOnce = false
		return nil, conversation.ErrConversationNotFound
	}
	for _, c := range m.rows {
		if c.HasParticipant(a) && c.HasParticipant(b) && sameListing(c.ListingID, listingID) {
			cp := c
			return &cp, nil
		}
	}
	return nil, conversation.ErrConversationNotFound
}

func (m *memConversations) Create(_ context.Context, convo *conversation.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.HasParticipant(convo.Participant1) && c.HasParticipant(convo.Participant2) && sameListing(c.ListingID, convo.ListingID) {
			return conversation.ErrDuplicate
		}
	}
	convo.ID = fmt.Sprintf("conv-%d", len(m.rows)+1)
	convo.CreatedAt = time.Now()
	m.rows = append(m.rows, *convo)
	return nil
}

func (m *memConversations) touch(id string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID != id {
			continue
		}
		if m.rows[i].LastMessageAt == nil || at.After(*m.rows[i].LastMessageAt) {
			t := at
			m.rows[i].LastMessageAt = &t
		}
	}
}

// memMessages enforces participant checks and touches the conversation only
// after a successful insert, like the SQL transaction.
type memMessages struct {
	mu         sync.Mutex
	convos     *memConversations
	rows       []message.Message
	clock      time.Time
	failInsert error
}

func (m *memMessages) Create(ctx context.Context, msg *message.Message) error {
	convo, err := m.convos.Get(ctx, msg.ConversationID)
	if err != nil {
		return message.ErrConversationNotFound
	}
	if !convo.HasParticipant(msg.SenderID) {
		return message.ErrNotParticipant
	}

	m.mu.Lock()
	if m.failInsert != nil {
		m.mu.Unlock()
		return m.failInsert
	}
	m.clock = m.clock.Add(time.Second)
	msg.ID = fmt.Sprintf("msg-%d", len(m.rows)+1)
	msg.CreatedAt = m.clock
	m.rows = append(m.rows, *msg)
	m.mu.Unlock()

	m.convos.touch(msg.ConversationID, msg.CreatedAt)
	return nil
}

func (m *memMessages) Get(_ context.Context, id string) (*message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.rows {
		if msg.ID == id {
			cp := msg
			return &cp, nil
		}
	}
	return nil, message.ErrMessageNotFound
}

func (m *memMessages) MarkRead(_ context.Context, conversationID, readerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.rows {
		if m.rows[i].ConversationID == conversationID && m.rows[i].SenderID != readerID && !m.rows[i].IsRead {
			m.rows[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *memMessages) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.rows {
		if msg.IsRead {
			n++
		}
	}
	return n
}

type mapCache struct {
	mu     sync.Mutex
	values map[string]string
}

func newMapCache() *mapCache {
	return &mapCache{values: map[string]string{}}
}

func (c *mapCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *mapCache) Close() error { return nil }

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (n *recordingNotifier) MessageCreated(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}
