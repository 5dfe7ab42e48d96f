package workflows

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
)

type Publisher interface {
	Publish(event events.ChatEvent)
}

// Local runs the suggestion steps in-process when no Temporal cluster is
// configured, and announces the result to live subscribers.
type Local struct {
	activities *Activities
	publisher  Publisher
	logger     *zap.Logger
	timeout    time.Duration
	wg         sync.WaitGroup
}

func NewLocal(activities *Activities, publisher Publisher, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{activities: activities, publisher: publisher, logger: logger, timeout: time.Minute}
}

func (l *Local) ScheduleSuggestions(ctx context.Context, chatID string, messages []llm.Message) error {
	ctx = context.WithoutCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()
		l.run(ctx, SuggestInput{ChatID: chatID, Messages: messages})
	}()
	return nil
}

func (l *Local) run(ctx context.Context, input SuggestInput) {
	logger := l.logger.With(zap.String("chat_id", input.ChatID))
	result, err := l.activities.GenerateSuggestions(ctx, input)
	if err != nil {
		logger.Warn("generate suggestions failed", zap.Error(err))
		return
	}
	if len(result.Questions) == 0 {
		return
	}
	if err := l.activities.SaveSuggestions(ctx, SaveInput{ChatID: input.ChatID, Questions: result.Questions}); err != nil {
		logger.Warn("save suggestions failed", zap.Error(err))
	}
	if l.publisher != nil {
		l.publisher.Publish(events.ChatEvent{
			ChatID:  input.ChatID,
			Type:    events.TypeSuggestions,
			Payload: map[string]any{"questions": result.Questions},
		})
	}
}

// Wait blocks until every scheduled run has finished.
func (l *Local) Wait() {
	l.wg.Wait()
}
