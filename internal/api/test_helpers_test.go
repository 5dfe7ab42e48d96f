package api

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/chat"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/metadata"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/store"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) UpsertChat(ctx context.Context, c store.Chat) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockStore) GetChat(ctx context.Context, chatID string) (*store.Chat, error) {
	args := m.Called(ctx, chatID)
	if value := args.Get(0); value != nil {
		return value.(*store.Chat), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) AppendMessages(ctx context.Context, chatID string, msgs []store.Message) ([]store.Message, error) {
	args := m.Called(ctx, chatID, msgs)
	var result []store.Message
	if value := args.Get(0); value != nil {
		result = value.([]store.Message)
	}
	return result, args.Error(1)
}

func (m *MockStore) ListMessages(ctx context.Context, chatID string) ([]store.Message, error) {
	args := m.Called(ctx, chatID)
	var result []store.Message
	if value := args.Get(0); value != nil {
		result = value.([]store.Message)
	}
	return result, args.Error(1)
}

func (m *MockStore) SaveSuggestions(ctx context.Context, suggestions store.Suggestions) error {
	args := m.Called(ctx, suggestions)
	return args.Error(0)
}

func (m *MockStore) GetSuggestions(ctx context.Context, chatID string) (*store.Suggestions, error) {
	args := m.Called(ctx, chatID)
	if value := args.Get(0); value != nil {
		return value.(*store.Suggestions), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) Subscribe(ctx context.Context, chatID string) <-chan events.ChatEvent {
	args := m.Called(ctx, chatID)
	if value := args.Get(0); value != nil {
		if ch, ok := value.(chan events.ChatEvent); ok {
			return ch
		}
		if ch, ok := value.(<-chan events.ChatEvent); ok {
			return ch
		}
	}
	return nil
}

// scriptedRunner replays events into the sink the way the orchestrator
// would.
type scriptedRunner struct {
	events []events.ChatEvent
	err    error
	got    chat.Request
}

func (r *scriptedRunner) Run(ctx context.Context, req chat.Request, sink chat.Sink) (chat.Result, error) {
	r.got = req
	for _, ev := range r.events {
		ev.ChatID = req.ChatID
		if err := sink.Emit(ctx, ev); err != nil {
			return chat.Result{ChatID: req.ChatID, State: chat.StateFailed}, err
		}
	}
	if r.err != nil {
		return chat.Result{ChatID: req.ChatID, State: chat.StateFailed}, r.err
	}
	return chat.Result{ChatID: req.ChatID, State: chat.StateDone, FinishReason: "stop"}, nil
}

type MockQuestionWriter struct {
	mock.Mock
}

func (m *MockQuestionWriter) Questions(ctx context.Context, history []llm.Message) ([]string, error) {
	args := m.Called(ctx, history)
	var result []string
	if value := args.Get(0); value != nil {
		result = value.([]string)
	}
	return result, args.Error(1)
}

type metadataFunc func(ctx context.Context, url string) *metadata.Metadata

func (f metadataFunc) Fetch(ctx context.Context, url string) *metadata.Metadata {
	return f(ctx, url)
}

func newTestServer(t *testing.T, runner ChatRunner, st store.Store, broker Broker, cfg config.Config, opts ...Option) *httptest.Server {
	t.Helper()
	server := NewServer(runner, st, broker, cfg, opts...)
	return httptest.NewServer(server.Router())
}

type noFlushWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (w *noFlushWriter) Header() http.Header {
	if w.header == nil {
		w.header = make(http.Header)
	}
	return w.header
}

func (w *noFlushWriter) WriteHeader(status int) {
	w.status = status
}

func (w *noFlushWriter) Write(data []byte) (int, error) {
	return w.body.Write(data)
}

type bufferWriter struct {
	*bufio.Writer
	header http.Header
}

func (w *bufferWriter) Header() http.Header {
	return w.header
}

func (w *bufferWriter) WriteHeader(statusCode int) {
}
