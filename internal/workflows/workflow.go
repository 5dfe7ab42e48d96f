package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
)

const (
	GenerateActivityName = "GenerateSuggestions"
	SaveActivityName     = "SaveSuggestions"
)

type SuggestInput struct {
	ChatID   string
	Messages []llm.Message
}

type SuggestResult struct {
	Questions []string
}

// SuggestWorkflow writes follow-up questions for a finished chat turn and
// stores them for the chat.
func SuggestWorkflow(ctx workflow.Context, input SuggestInput) (SuggestResult, error) {
	logger := workflow.GetLogger(ctx)

	generateCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	})
	var result SuggestResult
	if err := workflow.ExecuteActivity(generateCtx, GenerateActivityName, input).Get(ctx, &result); err != nil {
		logger.Error("generate suggestions failed", "chat_id", input.ChatID, "error", err)
		return SuggestResult{}, err
	}
	if len(result.Questions) == 0 {
		logger.Info("model produced no suggestions", "chat_id", input.ChatID)
		return result, nil
	}

	saveCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 5,
		},
	})
	if err := workflow.ExecuteActivity(saveCtx, SaveActivityName, SaveInput{
		ChatID:    input.ChatID,
		Questions: result.Questions,
	}).Get(ctx, nil); err != nil {
		logger.Error("save suggestions failed", "chat_id", input.ChatID, "error", err)
		return SuggestResult{}, err
	}
	return result, nil
}
