package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/metrics"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/tools"
)

// invocation is one tool call after validation, repair and execution.
type invocation struct {
	call   llm.ToolCall
	result any
	err    error
}

// message is the tool message the model sees. Failures become
// {"error": "..."} so the model can explain them.
func (inv invocation) message() llm.Message {
	content := ""
	if inv.err != nil {
		encoded, _ := json.Marshal(map[string]string{"error": inv.err.Error()})
		content = string(encoded)
	} else {
		encoded, err := json.Marshal(inv.result)
		if err != nil {
			encoded, _ = json.Marshal(map[string]string{"error": "tool result could not be encoded"})
		}
		content = string(encoded)
	}
	return llm.Message{Role: llm.RoleTool, Content: content, ToolCallID: inv.call.ID, Name: inv.call.Name}
}

// clientError maps a failure to the only detail a client is shown.
func clientError(err error) string {
	var argErr *tools.ArgumentError
	switch {
	case errors.Is(err, tools.ErrNoSuchTool):
		return "unknown tool"
	case errors.Is(err, ErrRepairFailed), errors.As(err, &argErr):
		return "invalid tool arguments"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "tool execution cancelled"
	default:
		return "tool execution failed"
	}
}

// executeCalls runs every call of one step concurrently and returns the
// invocations in call order. A failing call never affects its siblings.
func (t *turn) executeCalls(ctx context.Context, calls []llm.ToolCall) []invocation {
	out := make([]invocation, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		if strings.TrimSpace(call.ID) == "" {
			call.ID = "call_" + uuid.NewString()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = t.invoke(ctx, call)
		}()
	}
	wg.Wait()
	return out
}

func (t *turn) invoke(ctx context.Context, call llm.ToolCall) invocation {
	ctx, span := t.o.tracer.Start(ctx, "chat.tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", call.Name), attribute.String("tool.call_id", call.ID))
	logger := t.logger.With(zap.String("tool", call.Name), zap.String("tool_call_id", call.ID))

	inv := invocation{call: call}
	args, err := t.prepare(ctx, call)
	if err != nil {
		inv.err = err
	} else {
		inv.call.Arguments = string(args)
	}

	t.emit(ctx, 1, events.TypeToolCall, map[string]any{
		"toolCallId": inv.call.ID,
		"toolName":   call.Name,
		"args":       rawArgs(inv.call.Arguments),
	})

	if inv.err == nil {
		start := time.Now()
		inv.result, inv.err = t.o.registry.Execute(ctx, t.rc, call.Name, args)
		metrics.ToolDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
	}

	payload := map[string]any{"toolCallId": inv.call.ID, "toolName": call.Name}
	if inv.err != nil {
		span.RecordError(inv.err)
		span.SetStatus(codes.Error, "tool failed")
		metrics.ToolInvocations.WithLabelValues(metricToolName(t, call.Name), "error").Inc()
		logger.Warn("tool invocation failed", zap.Error(inv.err))
		payload["state"] = "error"
		payload["error"] = clientError(inv.err)
	} else {
		metrics.ToolInvocations.WithLabelValues(call.Name, "ok").Inc()
		payload["state"] = "result"
		payload["result"] = inv.result
	}
	t.emit(ctx, 1, events.TypeToolResult, payload)
	return inv
}

// prepare validates the arguments and repairs them once when they do not
// fit the schema. Calls outside the group's tools are never repaired.
func (t *turn) prepare(ctx context.Context, call llm.ToolCall) (json.RawMessage, error) {
	if !t.allowed[call.Name] {
		return nil, &noSuchToolError{name: call.Name}
	}
	args, err := t.o.registry.Validate(call.Name, call.Arguments)
	var argErr *tools.ArgumentError
	if !errors.As(err, &argErr) {
		return args, err
	}
	if t.o.repairer == nil {
		return nil, err
	}
	return t.o.repairer.Repair(ctx, t.rc, call, argErr)
}

type noSuchToolError struct {
	name string
}

func (e *noSuchToolError) Error() string {
	return "no such tool: " + e.name
}

func (e *noSuchToolError) Unwrap() error {
	return tools.ErrNoSuchTool
}

// metricToolName keeps label cardinality bounded for invented tool names.
func metricToolName(t *turn, name string) string {
	if t.o.registry.Has(name) {
		return name
	}
	return "unknown"
}

func rawArgs(arguments string) any {
	if json.Valid([]byte(arguments)) {
		return json.RawMessage(arguments)
	}
	return arguments
}
