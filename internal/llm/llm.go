package llm

import (
	"context"
	"encoding/json"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
)

// ResponseSchema requests structured JSON output conforming to Schema.
type ResponseSchema struct {
	Name   string
	Schema json.RawMessage
}

type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature *float32
	MaxTokens   int
	Tools       []ToolSpec
	ToolChoice  ToolChoice
	Schema      *ResponseSchema
}

type ChunkType string

const (
	ChunkTextDelta      ChunkType = "text-delta"
	ChunkReasoningDelta ChunkType = "reasoning-delta"
	ChunkToolCall       ChunkType = "tool-call"
	ChunkFinish         ChunkType = "finish"
)

type Chunk struct {
	Type         ChunkType
	Text         string
	ToolCall     *ToolCall
	FinishReason string
}

// Stream yields chunks until Recv returns io.EOF.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

type Provider interface {
	Generate(ctx context.Context, req Request) (Message, error)
	Stream(ctx context.Context, req Request) (Stream, error)
}

type Config struct {
	Provider         string
	BaseURL          string
	XAIAPIKey        string
	OpenAIAPIKey     string
	OpenRouterAPIKey string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "xai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.XAIAPIKey,
			BaseURL: defaultIfEmpty(cfg.BaseURL, "https://api.x.ai/v1"),
		}), nil
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.BaseURL,
		}), nil
	case "openrouter":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.OpenRouterAPIKey,
			BaseURL: defaultIfEmpty(cfg.BaseURL, "https://openrouter.ai/api/v1"),
		}), nil
	default:
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}
}

const DefaultModelID = "scira-default"

var modelAliases = map[string]string{
	"scira-default":              "grok-3-beta",
	"scira-vision":               "grok-2-vision-1212",
	"scira-grok3-mini-fast-beta": "grok-3-mini-fast-beta",
	"scira-grok3-mini-beta":      "grok-3-mini-beta",
}

// ResolveModel maps a client model id to the provider model name. Unknown
// ids resolve to the default model.
func ResolveModel(id string) string {
	if model, ok := modelAliases[strings.TrimSpace(id)]; ok {
		return model
	}
	return modelAliases[DefaultModelID]
}

// Temperature returns a pointer suitable for Request.Temperature.
func Temperature(value float32) *float32 {
	return &value
}

func defaultIfEmpty(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
