package workflows

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/store"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/suggest"
)

type SaveInput struct {
	ChatID    string
	Questions []string
}

type QuestionWriter interface {
	Questions(ctx context.Context, history []llm.Message) ([]string, error)
}

type SuggestionStore interface {
	SaveSuggestions(ctx context.Context, suggestions store.Suggestions) error
}

type Activities struct {
	writer QuestionWriter
	store  SuggestionStore
	logger *zap.Logger
}

func NewActivities(writer QuestionWriter, st SuggestionStore, logger *zap.Logger) *Activities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activities{writer: writer, store: st, logger: logger}
}

func (a *Activities) GenerateSuggestions(ctx context.Context, input SuggestInput) (SuggestResult, error) {
	questions, err := a.writer.Questions(ctx, input.Messages)
	if errors.Is(err, suggest.ErrNoHistory) {
		return SuggestResult{}, temporal.NewNonRetryableApplicationError(err.Error(), "NoHistory", err)
	}
	if err != nil {
		return SuggestResult{}, err
	}
	a.logger.Debug("suggestions generated", zap.String("chat_id", input.ChatID), zap.Int("count", len(questions)))
	return SuggestResult{Questions: questions}, nil
}

func (a *Activities) SaveSuggestions(ctx context.Context, input SaveInput) error {
	if a.store == nil {
		return nil
	}
	return a.store.SaveSuggestions(ctx, store.Suggestions{ChatID: input.ChatID, Questions: input.Questions})
}
