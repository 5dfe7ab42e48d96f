// Package suggest writes follow-up questions for a finished conversation.
package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
)

const (
	Model     = "grok-3-beta"
	MaxTokens = 300
	Count     = 3
)

const systemPrompt = `You are a trip planning query/questions generator. You 'have' to create only '3' questions for the search engine based on the message history which has been provided to you.
The questions should be open-ended and should encourage further discussion while maintaining the whole context. Limit it to 5-10 words per question.
Always put the user input's context is some way so that the next search knows what to search for exactly.
Try to stick to the context of the conversation and avoid asking questions that are too general or too specific.
For weather based conversations sent to you, always generate questions that are about news, sports, or other topics that are not related to the weather.
For programming based conversations, always generate questions that are about the algorithms, data structures, or other topics that are related to it or an improvement of the question.
For location based conversations, always generate questions that are about the culture, history, or other topics that are related to the location.
Do not use pronouns like he, she, him, his, her, etc. in the questions as they blur the context. Always use the proper nouns from the context.`

var schema = json.RawMessage(`{"type":"object","properties":{"questions":{"type":"array","items":{"type":"string"},"description":"The generated questions based on the message history."}},"required":["questions"]}`)

var ErrNoHistory = errors.New("no conversation to suggest from")

type Generator struct {
	provider llm.Provider
	logger   *zap.Logger
}

func New(provider llm.Provider, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{provider: provider, logger: logger}
}

// Questions asks the model for at most Count follow-up questions.
func (g *Generator) Questions(ctx context.Context, history []llm.Message) ([]string, error) {
	history = textOnly(history)
	if len(history) == 0 {
		return nil, ErrNoHistory
	}
	msg, err := g.provider.Generate(ctx, llm.Request{
		Model:       Model,
		System:      systemPrompt,
		Messages:    history,
		Temperature: llm.Temperature(0),
		MaxTokens:   MaxTokens,
		Schema:      &llm.ResponseSchema{Name: "suggested_questions", Schema: schema},
	})
	if err != nil {
		return nil, fmt.Errorf("suggest questions: %w", err)
	}
	var out struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(msg.Content)), &out); err != nil {
		g.logger.Warn("suggestions are not JSON", zap.Error(err))
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	questions := lo.Compact(lo.Map(out.Questions, func(q string, _ int) string {
		return strings.TrimSpace(q)
	}))
	if len(questions) > Count {
		questions = questions[:Count]
	}
	return questions, nil
}

// textOnly keeps the user and assistant prose. Tool traffic and empty tool
// call turns mean nothing to the question writer.
func textOnly(history []llm.Message) []llm.Message {
	return lo.FilterMap(history, func(msg llm.Message, _ int) (llm.Message, bool) {
		if msg.Role != llm.RoleUser && msg.Role != llm.RoleAssistant {
			return llm.Message{}, false
		}
		if strings.TrimSpace(msg.Content) == "" {
			return llm.Message{}, false
		}
		return llm.Message{Role: msg.Role, Content: msg.Content}, true
	})
}
