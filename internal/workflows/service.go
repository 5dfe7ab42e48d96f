package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
)

const DefaultTaskQueue = "trip-planner"

// Service starts suggestion workflows on a Temporal cluster.
type Service struct {
	client    client.Client
	taskQueue string
}

func NewService(client client.Client, taskQueue string) *Service {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Service{client: client, taskQueue: taskQueue}
}

func (s *Service) ScheduleSuggestions(ctx context.Context, chatID string, messages []llm.Message) error {
	options := client.StartWorkflowOptions{
		ID:                       workflowID(chatID, len(messages)),
		TaskQueue:                s.taskQueue,
		WorkflowExecutionTimeout: 5 * time.Minute,
	}
	_, err := s.client.ExecuteWorkflow(ctx, options, SuggestWorkflow, SuggestInput{ChatID: chatID, Messages: messages})
	return err
}

// workflowID is stable per turn so a retried schedule does not run twice.
func workflowID(chatID string, turnLength int) string {
	return fmt.Sprintf("suggest:%s:%d", chatID, turnLength)
}
