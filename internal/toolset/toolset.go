// Package toolset provides the closed set of side-effect capabilities a task
// executor may use: sandboxed file access, arithmetic and an action log.
//
// Capabilities are registered once in a Registry, which validates their
// names up front. Invocation by an unknown name yields a structured failure
// Result rather than an error.
package toolset

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnknownCapability is returned by Registry.Lookup for unregistered names.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrInvalidName is returned when a capability name is empty or malformed.
	ErrInvalidName = errors.New("invalid capability name")

	// ErrDuplicateName is returned when two capabilities share a name.
	ErrDuplicateName = errors.New("duplicate capability name")

	// ErrPathEscape is returned when a path resolves outside the workspace.
	ErrPathEscape = errors.New("path escapes workspace")

	// ErrMissingArgument is returned when a required argument is absent.
	ErrMissingArgument = errors.New("missing argument")
)

// Capability is one named side effect.
type Capability interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, args Args) Result
}

// Args are keyword arguments passed to a Capability.
type Args map[string]any

// String returns the named argument as a string.
func (a Args) String(key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, key)
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v), nil
	}
	return s, nil
}

// OptionalString returns the named argument or "" when absent.
func (a Args) OptionalString(key string) string {
	s, err := a.String(key)
	if err != nil {
		return ""
	}
	return s
}

// Result is the outcome of a capability invocation. Only the members
// relevant to the capability are populated.
type Result struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message,omitempty"`
	Path       string   `json:"filepath,omitempty"`
	Content    string   `json:"content,omitempty"`
	Files      []string `json:"files,omitempty"`
	Count      int      `json:"count,omitempty"`
	Expression string   `json:"expression,omitempty"`
	Value      string   `json:"result,omitempty"`
}

// Failure builds an unsuccessful Result.
func Failure(format string, a ...any) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, a...)}
}
