package main

import (
	"errors"
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/logging"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/store/postgres"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/suggest"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/workflows"
)

var errNoPostgres = errors.New("worker requires POSTGRES_URL")

var (
	loadConfig   = config.Load
	dialTemporal = client.Dial
	newStore     = func(conn string) (workflows.SuggestionStore, error) {
		return postgres.New(conn)
	}
	newProvider     = llm.NewProvider
	newWorker       = worker.New
	workerInterrupt = worker.InterruptCh
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

	if cfg.PostgresURL == "" {
		return errNoPostgres
	}
	temporalClient, err := dialTemporal(client.Options{
		HostPort: cfg.TemporalAddress,
	})
	if err != nil {
		return err
	}
	if temporalClient != nil {
		defer temporalClient.Close()
	}

	store, err := newStore(cfg.PostgresURL)
	if err != nil {
		return err
	}
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

	activities := workflows.NewActivities(suggest.New(provider, logger), store, logger)

	w := newWorker(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.SuggestWorkflow)
	w.RegisterActivity(activities)

	logger.Info("suggestion worker started", zap.String("task_queue", cfg.TemporalTaskQueue))
	return w.Run(workerInterrupt())
}
