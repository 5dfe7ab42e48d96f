package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm/llmtest"
)

func TestTranslateUsesStructuredGeneration(t *testing.T) {
	provider := llmtest.NewProvider().OnGenerate(llmtest.Turn{
		Message: llm.Message{Role: llm.RoleAssistant, Content: `{"translatedText":"Bonjour","detectedLanguage":"en"}`},
	})
	def := translateTool(Deps{LLM: provider}.withDefaults())

	out, err := def.Execute(context.Background(), RequestContext{Model: "grok-3-beta"}, json.RawMessage(`{"text":"Hello","to":"fr"}`))
	require.NoError(t, err)
	require.Equal(t, Translation{TranslatedText: "Bonjour", DetectedLanguage: "en"}, out)

	calls := provider.GenerateCalls()
	require.Len(t, calls, 1)
	require.Equal(t, "grok-3-beta", calls[0].Model)
	require.NotNil(t, calls[0].Schema)
	require.Contains(t, calls[0].Messages[0].Content, "French (fr)")
	require.Contains(t, calls[0].Messages[0].Content, "Hello")
}

func TestTranslateRejectsMalformedOutput(t *testing.T) {
	provider := llmtest.NewProvider().OnGenerate(llmtest.Turn{Message: llm.Message{Content: "not json"}})
	def := translateTool(Deps{LLM: provider}.withDefaults())

	_, err := def.Execute(context.Background(), RequestContext{}, json.RawMessage(`{"text":"Hello","to":"fr"}`))
	require.ErrorContains(t, err, "translation output")
}

func TestLanguageName(t *testing.T) {
	require.Equal(t, "German (de)", LanguageName("de"))
	require.Equal(t, "Elvish tongue", LanguageName(" Elvish tongue "))
}
