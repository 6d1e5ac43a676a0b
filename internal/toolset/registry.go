package toolset

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Registry is an immutable, ordered set of capabilities.
type Registry struct {
	order   []string
	caps    map[string]Capability
	metrics *Metrics
	logger  *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMetrics records invocation metrics.
func WithMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry validates and registers caps in the given order.
func NewRegistry(caps []Capability, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		caps:   make(map[string]Capability, len(caps)),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i, c := range caps {
		if c == nil {
			return nil, fmt.Errorf("capability %d: %w: nil", i, ErrInvalidName)
		}
		name := c.Name()
		if !namePattern.MatchString(name) {
			return nil, fmt.Errorf("capability %d: %w: %q", i, ErrInvalidName, name)
		}
		if _, dup := r.caps[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		r.caps[name] = c
		r.order = append(r.order, name)
	}
	return r, nil
}

// Names returns capability names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Lookup returns the named capability.
func (r *Registry) Lookup(name string) (Capability, error) {
	c, ok := r.caps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}
	return c, nil
}

// Invoke runs the named capability. An unknown name is reported as a
// failed Result.
func (r *Registry) Invoke(ctx context.Context, name string, args Args) Result {
	c, err := r.Lookup(name)
	if err != nil {
		r.logger.Warn("invoke of unknown capability", zap.String("capability", name))
		return Failure("Tool '%s' not found", name)
	}

	start := time.Now()
	r.metrics.IncrementActive(ctx, name)
	res := c.Invoke(ctx, args)
	r.metrics.DecrementActive(ctx, name)
	r.metrics.RecordInvocation(ctx, name, time.Since(start), res.Success)

	if !res.Success {
		r.logger.Debug("capability failed", zap.String("capability", name), zap.String("message", res.Message))
	}
	return res
}
