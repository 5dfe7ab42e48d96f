package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ringsaturn/tzf"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/api"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/cache"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/chat"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/groups"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/logging"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/metadata"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/normalize"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/store"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/store/memory"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/store/postgres"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/suggest"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/tools"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/workflows"
)

type server interface {
	Start(ctx context.Context, addr string) error
}

var (
	loadConfig  = config.Load
	newProvider = llm.NewProvider
	openCache   = func(ctx context.Context, cfg config.Config, logger *zap.Logger) cache.Cache {
		ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
		if cfg.RedisURL == "" {
			return cache.NewMemory(ttl)
		}
		redisCache, err := cache.NewRedis(ctx, cfg.RedisURL, "trip-planner:")
		if err != nil {
			logger.Warn("redis unavailable, using in-process cache", zap.Error(err))
			return cache.NewMemory(ttl)
		}
		return redisCache
	}
	openStore = func(cfg config.Config) (store.Store, error) {
		if cfg.PostgresURL == "" {
			return memory.New(), nil
		}
		return postgres.New(cfg.PostgresURL)
	}
	newZoneFinder = func() (tools.TimezoneFinder, error) {
		return tzf.NewDefaultFinder()
	}
	dialTemporal = client.Dial
	newServer    = func(runner api.ChatRunner, st store.Store, broker api.Broker, cfg config.Config, opts ...api.Option) server {
		return api.NewServer(runner, st, broker, cfg, opts...)
	}
	notifyContext = signal.NotifyContext
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := newProvider(llm.Config{
		Provider:         cfg.LLMProvider,
		BaseURL:          cfg.LLMBaseURL,
		XAIAPIKey:        cfg.XAIAPIKey,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenRouterAPIKey: cfg.OpenRouterAPIKey,
	})
	if err != nil {
		return err
	}

	sharedCache := openCache(ctx, cfg, logger)
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	zones, err := newZoneFinder()
	if err != nil {
		return fmt.Errorf("load timezone finder: %w", err)
	}

	registry, err := tools.NewRegistry(tools.Builtin(tools.Deps{
		HTTP: tools.NewHTTPClient(nil, cfg.ProviderRatePerSec, logger),
		Keys: tools.Keys{
			Tavily:        cfg.TavilyAPIKey,
			OpenWeather:   cfg.OpenWeatherAPIKey,
			GoogleMaps:    cfg.GoogleMapsAPIKey,
			Mapbox:        cfg.MapboxAccessToken,
			TripAdvisor:   cfg.TripAdvisorAPIKey,
			AviationStack: cfg.AviationStackKey,
		},
		Images: normalize.NewImageValidator(cfg.PublicBaseURL,
			normalize.WithCache(sharedCache, ttl),
			normalize.WithLogger(logger),
		),
		LLM:    provider,
		Zones:  zones,
		Logger: logger,
	})...)
	if err != nil {
		return err
	}

	resolver, err := groups.Load(cfg.PromptsDir)
	if err != nil {
		return err
	}
	if err := resolver.CheckTools(registry.Has); err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	broker := events.NewBroker()
	questions := suggest.New(provider, logger)

	var scheduler chat.SuggestionScheduler
	if cfg.TemporalAddress != "" {
		temporalClient, err := dialTemporal(client.Options{HostPort: cfg.TemporalAddress})
		if err != nil {
			return err
		}
		if temporalClient != nil {
			defer temporalClient.Close()
		}
		scheduler = workflows.NewService(temporalClient, cfg.TemporalTaskQueue)
	} else {
		local := workflows.NewLocal(workflows.NewActivities(questions, st, logger), broker, logger)
		defer local.Wait()
		scheduler = local
	}

	orchestrator := chat.New(provider, registry, resolver,
		chat.WithStore(st),
		chat.WithPublisher(broker),
		chat.WithSuggestionScheduler(scheduler),
		chat.WithLogger(logger),
		chat.WithMaxToolSteps(cfg.Pass1MaxToolSteps),
		chat.WithSmoothDelay(time.Duration(cfg.SmoothDelayMS)*time.Millisecond),
	)

	server := newServer(orchestrator, st, broker, cfg,
		api.WithQuestionWriter(questions),
		api.WithMetadataFetcher(metadata.New(metadata.WithCache(sharedCache, metadata.DefaultTTL), metadata.WithLogger(logger))),
		api.WithLogger(logger),
	)

	addr := fmt.Sprintf(":%s", cfg.Port)
	logger.Info("trip planner listening", zap.String("addr", addr), zap.Int("tools", len(registry.Names())))
	return server.Start(ctx, addr)
}
