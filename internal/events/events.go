// Package events fans chat stream events out to live subscribers.
package events

import (
	"context"
	"sync"
	"time"
)

const (
	TypeStepStart      = "step-start"
	TypeTextDelta      = "text-delta"
	TypeReasoningDelta = "reasoning-delta"
	TypeToolCall       = "tool-call"
	TypeToolResult     = "tool-result"
	TypeAnnotation     = "annotation"
	TypeFinish         = "finish"
	TypeError          = "error"
	TypeSuggestions    = "suggestions"
)

const subscriberBuffer = 16

// ChatEvent is one frame of a chat response stream. Seq is strictly
// increasing per chat.
type ChatEvent struct {
	ChatID  string         `json:"chat_id"`
	Seq     int64          `json:"seq"`
	Type    string         `json:"type"`
	Pass    int            `json:"pass,omitempty"`
	Ts      string         `json:"ts"`
	TraceID string         `json:"trace_id,omitempty"`
	Payload map[string]any `json:"payload"`
}

// Terminal reports whether no further events follow for this response.
func (e ChatEvent) Terminal() bool {
	return e.Type == TypeFinish || e.Type == TypeError
}

func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Broker drops events for subscribers whose buffer is full.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan ChatEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: map[string]map[chan ChatEvent]struct{}{},
	}
}

// Subscribe returns a channel of events for chatID. It is closed once ctx
// is done.
func (b *Broker) Subscribe(ctx context.Context, chatID string) <-chan ChatEvent {
	ch := make(chan ChatEvent, subscriberBuffer)

	b.mu.Lock()
	if b.subscribers[chatID] == nil {
		b.subscribers[chatID] = map[chan ChatEvent]struct{}{}
	}
	b.subscribers[chatID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if b.subscribers[chatID] != nil {
			delete(b.subscribers[chatID], ch)
			if len(b.subscribers[chatID]) == 0 {
				delete(b.subscribers, chatID)
			}
		}
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish never blocks. Channels are closed under the write lock, so
// sending while holding the read lock cannot hit a closed channel.
func (b *Broker) Publish(event ChatEvent) {
	if event.Ts == "" {
		event.Ts = Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers[event.ChatID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers reports how many live subscribers chatID has.
func (b *Broker) Subscribers(chatID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[chatID])
}
