package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/metrics"
	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/tools"
)

// ErrRepairFailed wraps the validation error of repaired arguments.
var ErrRepairFailed = errors.New("tool call repair failed")

// Repairer asks the model once for arguments that satisfy a tool's schema.
type Repairer struct {
	provider llm.Provider
	registry *tools.Registry
	model    string
	logger   *zap.Logger
}

func NewRepairer(provider llm.Provider, registry *tools.Registry, logger *zap.Logger) *Repairer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repairer{
		provider: provider,
		registry: registry,
		model:    llm.ResolveModel(llm.DefaultModelID),
		logger:   logger,
	}
}

// Repair never loops: one model call, one validation.
func (r *Repairer) Repair(ctx context.Context, rc tools.RequestContext, call llm.ToolCall, cause *tools.ArgumentError) (json.RawMessage, error) {
	schema, err := r.registry.SchemaJSON(call.Name)
	if err != nil {
		return nil, err
	}
	r.logger.Info("repairing tool call",
		zap.String("tool", call.Name),
		zap.Strings("problems", cause.Problems))

	msg, err := r.provider.Generate(ctx, llm.Request{
		Model: r.model,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: repairPrompt(call, schema, cause, rc),
		}},
		Schema: &llm.ResponseSchema{Name: call.Name + "_arguments", Schema: schema},
	})
	if err != nil {
		metrics.ToolRepairs.WithLabelValues(call.Name, "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrRepairFailed, err)
	}
	args, err := r.registry.Validate(call.Name, msg.Content)
	if err != nil {
		metrics.ToolRepairs.WithLabelValues(call.Name, "invalid").Inc()
		return nil, fmt.Errorf("%w: %w", ErrRepairFailed, err)
	}
	metrics.ToolRepairs.WithLabelValues(call.Name, "repaired").Inc()
	return args, nil
}

func repairPrompt(call llm.ToolCall, schema json.RawMessage, cause *tools.ArgumentError, rc tools.RequestContext) string {
	args := strings.TrimSpace(call.Arguments)
	if args == "" {
		args = "{}"
	}
	now := rc.Now
	if rc.Location != nil {
		now = now.In(rc.Location)
	}
	return strings.Join([]string{
		fmt.Sprintf("The model tried to call the tool %q with the following arguments:", call.Name),
		args,
		"The tool accepts the following schema:",
		string(schema),
		"The arguments failed validation: " + strings.Join(cause.Problems, "; "),
		"Please fix the arguments.",
		"For the web search make multiple queries to get the best results.",
		"Today's date is " + now.Format("January 2, 2006"),
	}, "\n")
}
