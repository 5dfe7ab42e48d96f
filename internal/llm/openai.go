package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// OpenAIProvider speaks the OpenAI chat-completions protocol, which xAI and
// OpenRouter also serve.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	client  *openai.Client
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = baseURL
	return &OpenAIProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  openai.NewClientWithConfig(clientCfg),
	}
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (Message, error) {
	if err := p.check(req); err != nil {
		return Message{}, err
	}
	resp, err := p.client.CreateChatCompletion(ctx, buildRequest(req))
	if err != nil {
		return Message{}, wrapProviderError(err)
	}
	if len(resp.Choices) == 0 {
		return Message{}, errors.New("LLM response had no choices")
	}
	choice := resp.Choices[0].Message
	msg := Message{
		Role:    RoleAssistant,
		Content: strings.TrimSpace(choice.Content),
	}
	for _, tc := range choice.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if msg.Content == "" && len(msg.ToolCalls) == 0 {
		return Message{}, errors.New("LLM response was empty")
	}
	return msg, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	if err := p.check(req); err != nil {
		return nil, err
	}
	stream, err := p.client.CreateChatCompletionStream(ctx, buildRequest(req))
	if err != nil {
		return nil, wrapProviderError(err)
	}
	return &openAIStream{stream: stream, calls: map[int]*ToolCall{}}, nil
}

func (p *OpenAIProvider) check(req Request) error {
	if p.apiKey == "" {
		return errors.New("missing API key for remote provider")
	}
	if req.Model == "" {
		return errors.New("missing model for remote provider")
	}
	return nil
}

// zeroTemperature stands in for an explicit 0, which the client library
// drops from the request body as an empty field.
const zeroTemperature = math.SmallestNonzeroFloat32

func buildRequest(req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, toOpenAIMessage(m))
	}

	out := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		temperature := *req.Temperature
		if temperature == 0 {
			temperature = zeroTemperature
		}
		out.Temperature = temperature
	}
	for _, spec := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	if len(out.Tools) > 0 && req.ToolChoice != "" {
		out.ToolChoice = string(req.ToolChoice)
	}
	if req.Schema != nil {
		name := req.Schema.Name
		if name == "" {
			name = "response"
		}
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: req.Schema.Schema,
			},
		}
	}
	return out
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return msg
}

// openAIStream turns completion deltas into chunks. Tool call fragments are
// accumulated by index and released, in index order, right before finish.
type openAIStream struct {
	stream *openai.ChatCompletionStream
	calls  map[int]*ToolCall
	order  []int
	queue  []Chunk
	finish string
	done   bool
}

func (s *openAIStream) Recv() (Chunk, error) {
	for {
		if len(s.queue) > 0 {
			chunk := s.queue[0]
			s.queue = s.queue[1:]
			return chunk, nil
		}
		if s.done {
			return Chunk{}, io.EOF
		}
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.flush()
			continue
		}
		if err != nil {
			return Chunk{}, wrapProviderError(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			s.queue = append(s.queue, Chunk{Type: ChunkTextDelta, Text: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			acc, ok := s.calls[index]
			if !ok {
				acc = &ToolCall{}
				s.calls[index] = acc
				s.order = append(s.order, index)
			}
			if tc.ID != "" {
				acc.ID = tc.ID
			}
			if tc.Function.Name != "" && acc.Name == "" {
				acc.Name = tc.Function.Name
			}
			acc.Arguments += tc.Function.Arguments
		}
		if choice.FinishReason != "" {
			s.finish = string(choice.FinishReason)
		}
	}
}

func (s *openAIStream) flush() {
	for _, index := range s.order {
		call := *s.calls[index]
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d", index)
		}
		s.queue = append(s.queue, Chunk{Type: ChunkToolCall, ToolCall: &call})
	}
	finish := s.finish
	if finish == "" {
		finish = "stop"
	}
	s.queue = append(s.queue, Chunk{Type: ChunkFinish, FinishReason: finish})
	s.done = true
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}
