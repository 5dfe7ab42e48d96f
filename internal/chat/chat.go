// Package chat runs the two-pass tool orchestration behind one chat turn.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
)

// GenericErrorMessage is all a client learns about a failed request.
const GenericErrorMessage = "Something went wrong, please retry."

var ErrEmptyConversation = errors.New("conversation has no messages")

type Request struct {
	ChatID   string
	Messages []llm.Message
	Model    string
	Group    string
	UserID   string
	Timezone string
}

func (r Request) validate() error {
	if len(r.Messages) == 0 {
		return ErrEmptyConversation
	}
	for i, msg := range r.Messages {
		switch msg.Role {
		case llm.RoleUser, llm.RoleAssistant, llm.RoleTool, llm.RoleSystem:
		default:
			return fmt.Errorf("message %d: unsupported role %q", i, msg.Role)
		}
	}
	return nil
}

// Location parses the caller's IANA zone. Anything unusable is UTC.
func Location(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Sink receives every client-visible event of a turn, in order.
type Sink interface {
	Emit(ctx context.Context, event events.ChatEvent) error
}

type SinkFunc func(ctx context.Context, event events.ChatEvent) error

func (f SinkFunc) Emit(ctx context.Context, event events.ChatEvent) error {
	return f(ctx, event)
}

// Publisher mirrors events to other listeners of the same chat.
type Publisher interface {
	Publish(event events.ChatEvent)
}

// SuggestionScheduler starts follow-up question generation for a finished
// turn.
type SuggestionScheduler interface {
	ScheduleSuggestions(ctx context.Context, chatID string, messages []llm.Message) error
}

// Result describes a finished turn.
type Result struct {
	ChatID       string
	State        State
	FinishReason string
	// Messages holds what both passes produced, in order.
	Messages []llm.Message
}
