package tools

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoSuchTool marks a call to a tool name that is not registered or not
// active for the request. It is never repaired.
var ErrNoSuchTool = errors.New("no such tool")

// ArgumentError reports arguments that do not satisfy a tool's schema.
type ArgumentError struct {
	Tool     string
	Problems []string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Problems, "; "))
}

// ProviderError is a non-2xx answer from an external API.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s request failed with status %d", e.Provider, e.Status)
}
