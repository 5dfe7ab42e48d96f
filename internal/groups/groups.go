// Package groups resolves a search group id to its tools and prompts.
package groups

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	Web  = "web"
	Chat = "chat"

	// TodayLayout renders dates like "Mon, Jan 02, 2006".
	TodayLayout = "Mon, Jan 02, 2006"

	toolKind     = "tool"
	responseKind = "response"
)

//go:embed groups.yaml
var embedded []byte

type file struct {
	Default string      `yaml:"default"`
	Groups  []groupSpec `yaml:"groups"`
}

type groupSpec struct {
	ID             string   `yaml:"id"`
	Tools          []string `yaml:"tools"`
	ToolPrompt     string   `yaml:"tool_prompt"`
	ResponsePrompt string   `yaml:"response_prompt"`
}

type group struct {
	id       string
	tools    []string
	tool     *template.Template
	response *template.Template
}

// Config is a resolved group for one request.
type Config struct {
	ID                 string
	Tools              []string
	ToolInstructions   string
	ResponseGuidelines string
}

// HasTools reports whether Pass 1 should run at all.
func (c Config) HasTools() bool {
	return len(c.Tools) > 0
}

// Resolver is immutable after Load.
type Resolver struct {
	groups   map[string]group
	order    []string
	fallback string
}

// Load reads the embedded group table. When promptsDir is set, files named
// "<group>.tool.md" and "<group>.response.md" inside it replace the
// embedded prompts. A relative promptsDir is searched for upwards from the
// working directory.
func Load(promptsDir string) (*Resolver, error) {
	return parse(embedded, promptsDir)
}

func parse(data []byte, promptsDir string) (*Resolver, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse groups: %w", err)
	}
	dir, err := resolveDir(promptsDir)
	if err != nil {
		return nil, err
	}

	r := &Resolver{groups: map[string]group{}, fallback: strings.TrimSpace(f.Default)}
	for _, spec := range f.Groups {
		id := strings.TrimSpace(spec.ID)
		if id == "" {
			return nil, errors.New("group id is required")
		}
		if _, exists := r.groups[id]; exists {
			return nil, fmt.Errorf("duplicate group %q", id)
		}
		toolText, err := override(dir, id, toolKind, spec.ToolPrompt)
		if err != nil {
			return nil, err
		}
		responseText, err := override(dir, id, responseKind, spec.ResponsePrompt)
		if err != nil {
			return nil, err
		}
		g := group{id: id, tools: append([]string{}, spec.Tools...)}
		if g.tool, err = template.New(id + "." + toolKind).Parse(strings.TrimSpace(toolText)); err != nil {
			return nil, fmt.Errorf("group %q tool prompt: %w", id, err)
		}
		if g.response, err = template.New(id + "." + responseKind).Parse(strings.TrimSpace(responseText)); err != nil {
			return nil, fmt.Errorf("group %q response prompt: %w", id, err)
		}
		r.groups[id] = g
		r.order = append(r.order, id)
	}
	if r.fallback == "" && len(r.order) > 0 {
		r.fallback = r.order[0]
	}
	if _, ok := r.groups[r.fallback]; !ok {
		return nil, fmt.Errorf("default group %q is not declared", r.fallback)
	}
	return r, nil
}

// Resolve never fails: an unknown id resolves to the default group.
func (r *Resolver) Resolve(id string, now time.Time) Config {
	g, ok := r.groups[strings.TrimSpace(id)]
	if !ok {
		g = r.groups[r.fallback]
	}
	data := struct{ Today string }{Today: now.Format(TodayLayout)}
	return Config{
		ID:                 g.id,
		Tools:              append([]string{}, g.tools...),
		ToolInstructions:   render(g.tool, data),
		ResponseGuidelines: render(g.response, data),
	}
}

// CheckTools reports every group tool for which has returns false.
func (r *Resolver) CheckTools(has func(name string) bool) error {
	var missing []string
	for _, id := range r.order {
		for _, name := range r.groups[id].tools {
			if !has(name) {
				missing = append(missing, id+"/"+name)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("groups reference unknown tools: %s", strings.Join(missing, ", "))
	}
	return nil
}

func render(tmpl *template.Template, data any) string {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return tmpl.Root.String()
	}
	return buf.String()
}

func override(dir string, id string, kind string, fallback string) (string, error) {
	if dir == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, id+"."+kind+".md"))
	if errors.Is(err, os.ErrNotExist) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func resolveDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", nil
	}
	if filepath.IsAbs(dir) {
		if _, err := os.Stat(dir); err != nil {
			return "", fmt.Errorf("prompts dir: %w", err)
		}
		return dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	found, err := findInParents(cwd, dir)
	if err != nil {
		return "", fmt.Errorf("prompts dir %q: %w", dir, err)
	}
	return found, nil
}

func findInParents(startDir string, name string) (string, error) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}
