package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
)

// RequestContext carries per-request facts every executor shares.
type RequestContext struct {
	Location *time.Location
	Now      time.Time
	Model    string
	// Annotate publishes an out-of-band progress annotation. May be nil.
	Annotate func(kind string, data any)
}

func (rc RequestContext) annotate(kind string, data any) {
	if rc.Annotate != nil {
		rc.Annotate(kind, data)
	}
}

func (rc RequestContext) location() *time.Location {
	if rc.Location == nil {
		return time.UTC
	}
	return rc.Location
}

type Handler func(ctx context.Context, rc RequestContext, args json.RawMessage) (any, error)

type Definition struct {
	Name        string
	Description string
	Schema      Schema
	Execute     Handler
}

type registered struct {
	def      Definition
	raw      json.RawMessage
	compiled *gojsonschema.Schema
}

// Registry is built once at startup and only read afterwards.
type Registry struct {
	tools map[string]registered
	order []string
}

func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{tools: map[string]registered{}}
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, fmt.Errorf("tool name is required")
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("duplicate tool %q", name)
		}
		if def.Execute == nil {
			return nil, fmt.Errorf("tool %q has no executor", name)
		}
		raw := def.Schema.JSON()
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("tool %q schema: %w", name, err)
		}
		r.tools[name] = registered{def: def, raw: raw, compiled: compiled}
		r.order = append(r.order, name)
	}
	return r, nil
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

func (r *Registry) Get(name string) (Definition, error) {
	t, ok := r.tools[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrNoSuchTool, name)
	}
	return t.def, nil
}

func (r *Registry) SchemaJSON(name string) (json.RawMessage, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchTool, name)
	}
	return t.raw, nil
}

// Subset returns the definitions for names, in the given order. Unknown
// names are skipped.
func (r *Registry) Subset(names []string) []Definition {
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			defs = append(defs, t.def)
		}
	}
	return defs
}

func (r *Registry) Specs(names []string) []llm.ToolSpec {
	defs := r.Subset(names)
	specs := make([]llm.ToolSpec, 0, len(defs))
	for _, def := range defs {
		specs = append(specs, llm.ToolSpec{Name: def.Name, Description: def.Description, Parameters: r.tools[def.Name].raw})
	}
	return specs
}

// Validate parses raw arguments, applies defaults and checks them against
// the tool's schema. It returns the normalized arguments.
func (r *Registry) Validate(name string, raw string) (json.RawMessage, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchTool, name)
	}
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	args := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, &ArgumentError{Tool: name, Problems: []string{"arguments are not a JSON object: " + err.Error()}}
	}
	t.def.Schema.applyDefaults(args)

	result, err := t.compiled.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return nil, &ArgumentError{Tool: name, Problems: []string{err.Error()}}
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, &ArgumentError{Tool: name, Problems: problems}
	}
	normalized, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

// Execute runs a tool with already validated arguments.
func (r *Registry) Execute(ctx context.Context, rc RequestContext, name string, args json.RawMessage) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchTool, name)
	}
	return t.def.Execute(ctx, rc, args)
}

func decodeArgs[T any](args json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(args, &out); err != nil {
		return out, fmt.Errorf("decode arguments: %w", err)
	}
	return out, nil
}
