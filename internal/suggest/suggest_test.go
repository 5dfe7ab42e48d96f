package suggest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm/llmtest"
)

func TestQuestionsRequest(t *testing.T) {
	provider := llmtest.NewProvider().OnGenerate(llmtest.Turn{Message: llm.Message{
		Content: `{"questions":["What food is Kyoto known for?"," ","Best temples in Kyoto?","Kyoto in autumn?","extra"]}`,
	}})
	g := New(provider, nil)

	questions, err := g.Questions(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "plan kyoto"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "web_search"}}},
		{Role: llm.RoleTool, Content: `{"x":1}`, ToolCallID: "c1"},
		{Role: llm.RoleAssistant, Content: "Here is a plan."},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"What food is Kyoto known for?", "Best temples in Kyoto?", "Kyoto in autumn?"}, questions)

	calls := provider.GenerateCalls()
	require.Len(t, calls, 1)
	req := calls[0]
	require.Equal(t, Model, req.Model)
	require.Equal(t, MaxTokens, req.MaxTokens)
	require.Equal(t, float32(0), *req.Temperature)
	require.NotNil(t, req.Schema)
	require.Len(t, req.Messages, 2)
	require.Contains(t, req.System, "trip planning query/questions generator")
}

func TestQuestionsErrors(t *testing.T) {
	_, err := New(llmtest.NewProvider(), nil).Questions(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoHistory)

	upstream := errors.New("429")
	provider := llmtest.NewProvider().OnGenerate(llmtest.Turn{Err: upstream})
	_, err = New(provider, nil).Questions(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.ErrorIs(t, err, upstream)

	provider = llmtest.NewProvider().OnGenerate(llmtest.Turn{Message: llm.Message{Content: "not json"}})
	_, err = New(provider, nil).Questions(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.ErrorContains(t, err, "decode suggestions")
}
