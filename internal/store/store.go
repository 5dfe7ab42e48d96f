package store

import (
	"context"
	"errors"
)

// ErrChatNotFound is returned when appending to a chat that was never
// created.
var ErrChatNotFound = errors.New("chat not found")

type Chat struct {
	ID        string
	UserID    string
	Group     string
	Model     string
	CreatedAt string
	UpdatedAt string
}

// Message is one persisted transcript entry. Tool calls, tool call ids and
// the producing pass live in Metadata.
type Message struct {
	ID        string
	ChatID    string
	Role      string
	Content   string
	Sequence  int64
	CreatedAt string
	Metadata  map[string]any
}

type Suggestions struct {
	ChatID    string
	Questions []string
	CreatedAt string
}

type Store interface {
	// UpsertChat creates the chat or refreshes its group, model and
	// updated_at.
	UpsertChat(ctx context.Context, chat Chat) error
	GetChat(ctx context.Context, chatID string) (*Chat, error)
	// AppendMessages assigns sequences after the chat's last message.
	AppendMessages(ctx context.Context, chatID string, msgs []Message) ([]Message, error)
	ListMessages(ctx context.Context, chatID string) ([]Message, error)
	SaveSuggestions(ctx context.Context, suggestions Suggestions) error
	GetSuggestions(ctx context.Context, chatID string) (*Suggestions, error)
	Ping(ctx context.Context) error
}
