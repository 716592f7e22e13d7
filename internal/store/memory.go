package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no conversation exists for a session id.
	ErrNotFound = errors.New("no conversation for session")
)

// Chat roles stored in a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Usage is a running token count.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns u plus o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// Conversation is the time-ordered history of one chat session.
type Conversation struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Conversation) clone() Conversation {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	return out
}

// MemoryStore is a concurrency-safe in-memory conversation store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: session id
	data map[string]*Conversation

	// retention configuration
	maxHistory int           // max number of messages per conversation
	maxAge     time.Duration // idle time after which a conversation is purged

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited; maxAge <= 0 never purges.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*Conversation),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Create starts an empty conversation under a fresh session id.
func (s *MemoryStore) Create() Conversation {
	now := s.now()
	c := &Conversation{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[c.ID] = c
	return c.clone()
}

// Get returns a copy of the conversation for id.
func (s *MemoryStore) Get(id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return c.clone(), nil
}

// Append adds messages to a conversation, accumulates usage and enforces retention.
func (s *MemoryStore) Append(id string, usage Usage, msgs ...Message) (Conversation, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.data[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	for _, m := range msgs {
		if m.At.IsZero() {
			m.At = now
		}
		c.Messages = append(c.Messages, m)
	}
	c.Usage = c.Usage.Add(usage)
	c.UpdatedAt = now

	// Enforce retention by count.
	if s.maxHistory > 0 && len(c.Messages) > s.maxHistory {
		over := len(c.Messages) - s.maxHistory
		c.Messages = append([]Message(nil), c.Messages[over:]...)
	}
	return c.clone(), nil
}

// Delete removes a conversation. It reports whether one existed.
func (s *MemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.data[id]
	delete(s.data, id)
	return ok
}

// PurgeIdle drops conversations not updated within maxAge and returns how many.
func (s *MemoryStore) PurgeIdle() int {
	if s.maxAge <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, c := range s.data {
		if c.UpdatedAt.Before(cutoff) {
			delete(s.data, id)
			n++
		}
	}
	return n
}

// Len returns the number of live conversations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
