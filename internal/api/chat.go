package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/chat"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/store"
)

const maxChatBody = 4 << 20

type chatRequest struct {
	ChatID   string          `json:"chat_id"`
	Messages []clientMessage `json:"messages"`
	Model    string          `json:"model"`
	Group    string          `json:"group"`
	UserID   string          `json:"user_id"`
	Timezone string          `json:"timezone"`
}

func (s *Server) streamChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, "messages required", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	chatID := strings.TrimSpace(req.ChatID)
	if chatID == "" {
		chatID = uuid.NewString()
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Chat-ID", chatID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := &sseSink{w: w, flusher: flusher}
	_, err := s.runner.Run(r.Context(), chat.Request{
		ChatID:   chatID,
		Messages: toModelMessages(req.Messages),
		Model:    req.Model,
		Group:    req.Group,
		UserID:   req.UserID,
		Timezone: req.Timezone,
	}, sink)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		s.logger.Debug("chat stream closed by client", zap.String("chat_id", chatID))
		return
	}
	s.logger.Warn("chat turn failed", zap.String("chat_id", chatID), zap.Error(err))
	if !sink.terminated() {
		sink.write(events.ChatEvent{
			ChatID:  chatID,
			Type:    events.TypeError,
			Ts:      events.Now(),
			Payload: map[string]any{"message": chat.GenericErrorMessage},
		})
	}
}

// sseSink writes chat events as server-sent events.
type sseSink struct {
	mu       sync.Mutex
	w        http.ResponseWriter
	flusher  http.Flusher
	terminal bool
}

func (s *sseSink) Emit(ctx context.Context, event events.ChatEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(event)
}

func (s *sseSink) write(event events.ChatEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.Terminal() {
		s.terminal = true
	}
	if err := sendSSE(s.w, event); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

func sendSSE(w http.ResponseWriter, event events.ChatEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		if _, err := fmt.Fprintf(w, "id: %s:%d\n", event.ChatID, event.Seq); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
	return err
}

type messageResponse struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Sequence   int64          `json:"sequence"`
	CreatedAt  string         `json:"created_at"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	if s.store == nil {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}
	found, err := s.store.GetChat(r.Context(), chatID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if found == nil {
		http.Error(w, "chat not found", http.StatusNotFound)
		return
	}
	rows, err := s.store.ListMessages(r.Context(), chatID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]messageResponse, 0, len(rows))
	for _, row := range rows {
		msg := chat.FromStore(row)
		out = append(out, messageResponse{
			ID:         row.ID,
			Role:       row.Role,
			Content:    row.Content,
			Sequence:   row.Sequence,
			CreatedAt:  row.CreatedAt,
			ToolCalls:  msg.ToolCalls,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
			Metadata:   row.Metadata,
		})
	}
	writeJSON(w, map[string]any{"chat": chatResponse(found), "messages": out})
}

func chatResponse(c *store.Chat) map[string]any {
	return map[string]any{
		"id":         c.ID,
		"user_id":    c.UserID,
		"group":      c.Group,
		"model":      c.Model,
		"created_at": c.CreatedAt,
		"updated_at": c.UpdatedAt,
	}
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	eventsChan := s.broker.Subscribe(ctx, chatID)
	heartbeat := newTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-eventsChan:
			if !ok {
				return
			}
			if err := sendSSE(w, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) getSuggestions(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	if s.store == nil {
		http.Error(w, "suggestions not found", http.StatusNotFound)
		return
	}
	found, err := s.store.GetSuggestions(r.Context(), chatID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if found == nil {
		http.Error(w, "suggestions not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"questions": found.Questions, "created_at": found.CreatedAt})
}
