package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/store"
)

type MemoryStore struct {
	mu          sync.RWMutex
	chats       map[string]store.Chat
	messages    map[string][]store.Message
	suggestions map[string]store.Suggestions
}

var _ store.Store = (*MemoryStore)(nil)

func New() *MemoryStore {
	return &MemoryStore{
		chats:       map[string]store.Chat{},
		messages:    map[string][]store.Message{},
		suggestions: map[string]store.Suggestions{},
	}
}

func (m *MemoryStore) UpsertChat(ctx context.Context, chat store.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := timestamp()
	if existing, ok := m.chats[chat.ID]; ok {
		existing.Group = chat.Group
		existing.Model = chat.Model
		if strings.TrimSpace(chat.UserID) != "" {
			existing.UserID = chat.UserID
		}
		existing.UpdatedAt = now
		m.chats[chat.ID] = existing
		return nil
	}
	if chat.CreatedAt == "" {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = now
	m.chats[chat.ID] = chat
	return nil
}

func (m *MemoryStore) GetChat(ctx context.Context, chatID string) (*store.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return nil, nil
	}
	return &chat, nil
}

func (m *MemoryStore) AppendMessages(ctx context.Context, chatID string, msgs []store.Message) ([]store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[chatID]; !ok {
		return nil, store.ErrChatNotFound
	}
	existing := m.messages[chatID]
	next := int64(len(existing))
	if len(existing) > 0 {
		next = existing[len(existing)-1].Sequence
	}
	stored := make([]store.Message, 0, len(msgs))
	for _, msg := range msgs {
		next++
		msg.ChatID = chatID
		msg.Sequence = next
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.CreatedAt == "" {
			msg.CreatedAt = timestamp()
		}
		msg.Metadata = cloneMap(msg.Metadata)
		stored = append(stored, msg)
	}
	m.messages[chatID] = append(existing, stored...)
	return append([]store.Message(nil), stored...), nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, chatID string) ([]store.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]store.Message, 0, len(m.messages[chatID]))
	for _, msg := range m.messages[chatID] {
		msg.Metadata = cloneMap(msg.Metadata)
		results = append(results, msg)
	}
	return results, nil
}

func (m *MemoryStore) SaveSuggestions(ctx context.Context, suggestions store.Suggestions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[suggestions.ChatID]; !ok {
		return store.ErrChatNotFound
	}
	if suggestions.CreatedAt == "" {
		suggestions.CreatedAt = timestamp()
	}
	suggestions.Questions = append([]string{}, suggestions.Questions...)
	m.suggestions[suggestions.ChatID] = suggestions
	return nil
}

func (m *MemoryStore) GetSuggestions(ctx context.Context, chatID string) (*store.Suggestions, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	suggestions, ok := m.suggestions[chatID]
	if !ok {
		return nil, nil
	}
	suggestions.Questions = append([]string{}, suggestions.Questions...)
	return &suggestions, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
