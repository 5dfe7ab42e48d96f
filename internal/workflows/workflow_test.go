package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	tests "go.temporal.io/sdk/testsuite"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
)

type WorkflowTestSuite struct {
	suite.Suite
	testSuite *tests.WorkflowTestSuite
	env       *tests.TestWorkflowEnvironment
}

func (s *WorkflowTestSuite) SetupTest() {
	s.testSuite = &tests.WorkflowTestSuite{}
	s.env = s.testSuite.NewTestWorkflowEnvironment()
	s.env.RegisterWorkflow(SuggestWorkflow)
	s.env.RegisterActivityWithOptions(func(ctx context.Context, input SuggestInput) (SuggestResult, error) {
		return SuggestResult{}, nil
	}, activity.RegisterOptions{Name: GenerateActivityName})
	s.env.RegisterActivityWithOptions(func(ctx context.Context, input SaveInput) error {
		return nil
	}, activity.RegisterOptions{Name: SaveActivityName})
}

func (s *WorkflowTestSuite) TearDownTest() {
	s.env.AssertExpectations(s.T())
}

func sampleInput() SuggestInput {
	return SuggestInput{ChatID: "chat-1", Messages: []llm.Message{{Role: llm.RoleUser, Content: "plan a week in Crete"}}}
}

func (s *WorkflowTestSuite) TestSuggestWorkflow_Success() {
	questions := []string{"Best beaches in Crete?", "Crete food specialities?", "Crete hiking gorges?"}
	s.env.OnActivity(GenerateActivityName, mock.Anything, sampleInput()).Return(SuggestResult{Questions: questions}, nil).Once()
	s.env.OnActivity(SaveActivityName, mock.Anything, SaveInput{ChatID: "chat-1", Questions: questions}).Return(nil).Once()

	s.env.ExecuteWorkflow(SuggestWorkflow, sampleInput())
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var result SuggestResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(questions, result.Questions)
}

func (s *WorkflowTestSuite) TestSuggestWorkflow_NoQuestionsSkipsSave() {
	s.env.OnActivity(GenerateActivityName, mock.Anything, sampleInput()).Return(SuggestResult{}, nil).Once()

	s.env.ExecuteWorkflow(SuggestWorkflow, sampleInput())
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *WorkflowTestSuite) TestSuggestWorkflow_GenerateFails() {
	s.env.OnActivity(GenerateActivityName, mock.Anything, mock.Anything).
		Return(SuggestResult{}, temporal.NewNonRetryableApplicationError("no history", "NoHistory", errors.New("no history"))).Once()

	s.env.ExecuteWorkflow(SuggestWorkflow, sampleInput())
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func (s *WorkflowTestSuite) TestSuggestWorkflow_SaveFails() {
	s.env.OnActivity(GenerateActivityName, mock.Anything, mock.Anything).Return(SuggestResult{Questions: []string{"q"}}, nil).Once()
	s.env.OnActivity(SaveActivityName, mock.Anything, mock.Anything).
		Return(temporal.NewNonRetryableApplicationError("db down", "Store", nil)).Once()

	s.env.ExecuteWorkflow(SuggestWorkflow, sampleInput())
	s.True(s.env.IsWorkflowCompleted())
	s.ErrorContains(s.env.GetWorkflowError(), "db down")
}

func TestWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(WorkflowTestSuite))
}
