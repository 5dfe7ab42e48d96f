package chat

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/store"
)

// afterTurn persists the transcript and schedules follow-up questions.
// Both outlive a disconnected client.
func (o *Orchestrator) afterTurn(ctx context.Context, t *turn, result Result) {
	if o.store == nil && o.scheduler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if o.store != nil {
		if err := o.persist(ctx, t, result); err != nil {
			t.logger.Error("persist transcript failed", zap.Error(err))
		}
	}
	if o.scheduler != nil {
		conversation := append(append([]llm.Message(nil), t.req.Messages...), result.Messages...)
		if err := o.scheduler.ScheduleSuggestions(ctx, t.chatID, conversation); err != nil {
			t.logger.Warn("schedule suggestions failed", zap.Error(err))
		}
	}
}

func (o *Orchestrator) persist(ctx context.Context, t *turn, result Result) error {
	existing, err := o.store.ListMessages(ctx, t.chatID)
	if err != nil {
		return err
	}
	if err := o.store.UpsertChat(ctx, store.Chat{
		ID:     t.chatID,
		UserID: t.req.UserID,
		Group:  t.cfg.ID,
		Model:  t.model,
	}); err != nil {
		return err
	}

	incoming := newMessages(t.req.Messages, len(existing) > 0)
	msgs := make([]store.Message, 0, len(incoming)+len(result.Messages))
	for _, msg := range incoming {
		msgs = append(msgs, ToStore(msg, 0))
	}
	last := len(result.Messages) - 1
	for i, msg := range result.Messages {
		pass := 1
		if i == last {
			pass = 2
		}
		msgs = append(msgs, ToStore(msg, pass))
	}
	_, err = o.store.AppendMessages(ctx, t.chatID, msgs)
	return err
}

// newMessages picks what the client sent that is not stored yet. A chat
// with history only contributes what follows its last assistant message.
func newMessages(msgs []llm.Message, hasHistory bool) []llm.Message {
	if !hasHistory {
		return msgs
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleAssistant {
			return msgs[i+1:]
		}
	}
	return msgs
}

// ToStore flattens a model message into a transcript row. Pass 0 marks
// client input.
func ToStore(msg llm.Message, pass int) store.Message {
	meta := map[string]any{}
	if pass > 0 {
		meta["pass"] = pass
	}
	if len(msg.ToolCalls) > 0 {
		calls := make([]any, 0, len(msg.ToolCalls))
		for _, call := range msg.ToolCalls {
			calls = append(calls, map[string]any{"id": call.ID, "name": call.Name, "arguments": call.Arguments})
		}
		meta["tool_calls"] = calls
	}
	if msg.ToolCallID != "" {
		meta["tool_call_id"] = msg.ToolCallID
	}
	if msg.Name != "" {
		meta["name"] = msg.Name
	}
	out := store.Message{
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if len(meta) > 0 {
		out.Metadata = meta
	}
	return out
}

// FromStore rebuilds the model message of a transcript row.
func FromStore(msg store.Message) llm.Message {
	out := llm.Message{Role: msg.Role, Content: msg.Content}
	if msg.Metadata == nil {
		return out
	}
	if id, ok := msg.Metadata["tool_call_id"].(string); ok {
		out.ToolCallID = id
	}
	if name, ok := msg.Metadata["name"].(string); ok {
		out.Name = name
	}
	if raw, ok := msg.Metadata["tool_calls"]; ok {
		encoded, err := json.Marshal(raw)
		if err == nil {
			var calls []llm.ToolCall
			if json.Unmarshal(encoded, &calls) == nil {
				out.ToolCalls = calls
			}
		}
	}
	return out
}
