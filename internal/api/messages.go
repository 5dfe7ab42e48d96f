package api

import (
	"encoding/json"
	"strings"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
)

// clientMessage is a chat message as the web client sends it. Assistant
// messages may carry their earlier tool invocations as parts.
type clientMessage struct {
	Role    string       `json:"role"`
	Content string       `json:"content"`
	Parts   []clientPart `json:"parts,omitempty"`
}

type clientPart struct {
	Type           string          `json:"type"`
	Text           string          `json:"text,omitempty"`
	ToolInvocation *toolInvocation `json:"toolInvocation,omitempty"`
}

type toolInvocation struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args,omitempty"`
	State      string          `json:"state"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// toModelMessages expands client history into model messages. A finished
// tool invocation becomes an assistant tool call followed by its tool
// result; unfinished ones are dropped.
func toModelMessages(in []clientMessage) []llm.Message {
	out := make([]llm.Message, 0, len(in))
	for _, msg := range in {
		role := strings.TrimSpace(msg.Role)
		if role != llm.RoleAssistant || !hasInvocations(msg.Parts) {
			out = append(out, llm.Message{Role: role, Content: messageText(msg)})
			continue
		}
		out = append(out, expandAssistant(msg.Parts)...)
	}
	return out
}

func expandAssistant(parts []clientPart) []llm.Message {
	var before, after strings.Builder
	calls := []llm.ToolCall{}
	results := []llm.Message{}
	for _, part := range parts {
		switch part.Type {
		case "text":
			if len(calls) == 0 {
				before.WriteString(part.Text)
			} else {
				after.WriteString(part.Text)
			}
		case "tool-invocation":
			inv := part.ToolInvocation
			if inv == nil || inv.State != "result" {
				continue
			}
			args := string(inv.Args)
			if args == "" {
				args = "{}"
			}
			calls = append(calls, llm.ToolCall{ID: inv.ToolCallID, Name: inv.ToolName, Arguments: args})
			content := string(inv.Result)
			if content == "" {
				content = "null"
			}
			results = append(results, llm.Message{Role: llm.RoleTool, Content: content, ToolCallID: inv.ToolCallID, Name: inv.ToolName})
		}
	}
	if len(calls) == 0 {
		return []llm.Message{{Role: llm.RoleAssistant, Content: before.String() + after.String()}}
	}
	out := []llm.Message{{Role: llm.RoleAssistant, Content: before.String(), ToolCalls: calls}}
	out = append(out, results...)
	if text := after.String(); text != "" {
		out = append(out, llm.Message{Role: llm.RoleAssistant, Content: text})
	}
	return out
}

func hasInvocations(parts []clientPart) bool {
	for _, part := range parts {
		if part.Type == "tool-invocation" {
			return true
		}
	}
	return false
}

func messageText(msg clientMessage) string {
	if msg.Content != "" || len(msg.Parts) == 0 {
		return msg.Content
	}
	var b strings.Builder
	for _, part := range msg.Parts {
		if part.Type == "text" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
