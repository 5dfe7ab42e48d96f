package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/config"
)

func TestNewServer(t *testing.T) {
	server := NewServer(&scriptedRunner{}, &MockStore{}, &MockBroker{}, config.Config{})
	require.NotNil(t, server)
	require.NotNil(t, server.Router())
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, &scriptedRunner{}, &MockStore{}, &MockBroker{}, config.Config{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "ok", payload["status"])
}

func TestReady(t *testing.T) {
	t.Run("ready when dependencies healthy", func(t *testing.T) {
		storeMock := &MockStore{}
		storeMock.On("Ping", mock.Anything).Return(nil).Once()

		server := newTestServer(t, &scriptedRunner{}, storeMock, &MockBroker{}, config.Config{LLMProvider: "xai", XAIAPIKey: "key"})
		defer server.Close()

		resp, err := http.Get(server.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var payload readinessResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		require.Equal(t, "ok", payload.Status)
		require.Equal(t, "ok", payload.Subsystems["store"].Status)
		require.Equal(t, "ok", payload.Subsystems["llm"].Status)
		storeMock.AssertExpectations(t)
	})

	t.Run("degraded when store unavailable", func(t *testing.T) {
		storeMock := &MockStore{}
		storeMock.On("Ping", mock.Anything).Return(errors.New("db unavailable")).Once()

		server := newTestServer(t, &scriptedRunner{}, storeMock, &MockBroker{}, config.Config{LLMProvider: "xai", XAIAPIKey: "key"})
		defer server.Close()

		resp, err := http.Get(server.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var payload readinessResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		require.Equal(t, "degraded", payload.Status)
		require.Equal(t, "db unavailable", payload.Subsystems["store"].Error)
	})

	t.Run("degraded without any provider configured", func(t *testing.T) {
		server := newTestServer(t, &scriptedRunner{}, nil, &MockBroker{}, config.Config{})
		defer server.Close()

		resp, err := http.Get(server.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var payload readinessResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		require.Equal(t, "error", payload.Subsystems["llm"].Status)
	})

	t.Run("degraded without provider key", func(t *testing.T) {
		server := newTestServer(t, &scriptedRunner{}, nil, &MockBroker{}, config.Config{LLMProvider: "openai"})
		defer server.Close()

		resp, err := http.Get(server.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var payload readinessResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		require.Equal(t, "skipped", payload.Subsystems["store"].Status)
		require.Equal(t, "error", payload.Subsystems["llm"].Status)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, &scriptedRunner{}, nil, &MockBroker{}, config.Config{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "go_goroutines")
}

func TestCORSMiddleware(t *testing.T) {
	server := newTestServer(t, &scriptedRunner{}, &MockStore{}, &MockBroker{}, config.Config{})
	defer server.Close()

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/api/chat", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header.Get("Access-Control-Expose-Headers"), "X-Chat-ID")
}

func TestShouldSuppressRequestLog(t *testing.T) {
	require.True(t, shouldSuppressRequestLog(http.MethodGet, "/api/chats/c1/events"))
	require.True(t, shouldSuppressRequestLog(http.MethodGet, "/metrics"))
	require.True(t, shouldSuppressRequestLog(http.MethodOptions, "/api/chat"))
	require.False(t, shouldSuppressRequestLog(http.MethodPost, "/api/chat"))
}

func TestStart(t *testing.T) {
	server := NewServer(&scriptedRunner{}, &MockStore{}, &MockBroker{}, config.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	result := make(chan error, 1)
	go func() {
		result <- server.Start(ctx, addr)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	require.NoError(t, <-result)
}
