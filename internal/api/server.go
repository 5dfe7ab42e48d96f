package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/chat"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/metadata"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/store"
)

type Server struct {
	runner     ChatRunner
	store      store.Store
	broker     Broker
	questions  QuestionWriter
	metadata   MetadataFetcher
	cfg        config.Config
	logger     *zap.Logger
	httpClient *http.Client
	heartbeat  time.Duration
	// maxImageBytes caps what the image proxy relays.
	maxImageBytes int64
}

type ChatRunner interface {
	Run(ctx context.Context, req chat.Request, sink chat.Sink) (chat.Result, error)
}

type Broker interface {
	Subscribe(ctx context.Context, chatID string) <-chan events.ChatEvent
}

type QuestionWriter interface {
	Questions(ctx context.Context, history []llm.Message) ([]string, error)
}

type MetadataFetcher interface {
	Fetch(ctx context.Context, url string) *metadata.Metadata
}

type Option func(*Server)

func WithQuestionWriter(w QuestionWriter) Option {
	return func(s *Server) { s.questions = w }
}

func WithMetadataFetcher(f MetadataFetcher) Option {
	return func(s *Server) { s.metadata = f }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *Server) { s.httpClient = client }
}

func NewServer(runner ChatRunner, st store.Store, broker Broker, cfg config.Config, opts ...Option) *Server {
	s := &Server{
		runner:        runner,
		store:         st,
		broker:        broker,
		cfg:           cfg,
		logger:        zap.NewNop(),
		httpClient:    newPublicClient(30 * time.Second),
		heartbeat:     15 * time.Second,
		maxImageBytes: 10 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(quietRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Post("/api/chat", s.streamChat)
	r.Get("/api/chats/{id}/messages", s.listMessages)
	r.Get("/api/chats/{id}/events", s.streamEvents)
	r.Get("/api/chats/{id}/suggestions", s.getSuggestions)
	r.Post("/api/suggest-questions", s.suggestQuestions)
	r.Get("/api/metadata", s.fetchMetadata)
	r.Get("/api/proxy-image", s.proxyImage)
	r.Head("/api/proxy-image", s.proxyImage)
	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func quietRequestLogger(next http.Handler) http.Handler {
	logged := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSuppressRequestLog(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		logged.ServeHTTP(w, r)
	})
}

func shouldSuppressRequestLog(method string, path string) bool {
	cleanPath := strings.TrimSpace(path)
	if method == http.MethodGet && strings.HasSuffix(cleanPath, "/events") {
		return true
	}
	if method == http.MethodGet && (cleanPath == "/health" || cleanPath == "/ready" || cleanPath == "/metrics") {
		return true
	}
	if method == http.MethodOptions {
		return true
	}
	return false
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type subsystemStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status     string                     `json:"status"`
	Subsystems map[string]subsystemStatus `json:"subsystems"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	subsystems := map[string]subsystemStatus{}
	overall := http.StatusOK

	if s.store == nil {
		subsystems["store"] = subsystemStatus{Status: "skipped"}
	} else if err := s.store.Ping(ctx); err != nil {
		subsystems["store"] = subsystemStatus{Status: "error", Error: err.Error()}
		overall = http.StatusServiceUnavailable
	} else {
		subsystems["store"] = subsystemStatus{Status: "ok"}
	}

	if llmConfigured(s.cfg) {
		subsystems["llm"] = subsystemStatus{Status: "ok"}
	} else {
		subsystems["llm"] = subsystemStatus{Status: "error", Error: "no API key for provider " + s.cfg.LLMProvider}
		overall = http.StatusServiceUnavailable
	}

	status := "ok"
	if overall != http.StatusOK {
		status = "degraded"
	}
	writeJSONStatus(w, readinessResponse{Status: status, Subsystems: subsystems}, overall)
}

func llmConfigured(cfg config.Config) bool {
	switch cfg.LLMProvider {
	case "xai":
		return strings.TrimSpace(cfg.XAIAPIKey) != ""
	case "openai":
		return strings.TrimSpace(cfg.OpenAIAPIKey) != ""
	case "openrouter":
		return strings.TrimSpace(cfg.OpenRouterAPIKey) != ""
	default:
		return false
	}
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeJSON(w http.ResponseWriter, value any) {
	writeJSONStatus(w, value, http.StatusOK)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
		w.Header().Set("Access-Control-Expose-Headers", "X-Chat-ID, X-Final-URL")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
