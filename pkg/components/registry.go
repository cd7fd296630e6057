package components

import (
	"context"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/goliatone/go-leafrender/pkg/model"
)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger attaches a logger used to report registrations.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithValidator overrides the structural schema validator.
func WithValidator(validator Validator) Option {
	return func(r *Registry) {
		if validator != nil {
			r.validator = validator
		}
	}
}

type entry struct {
	raw    []byte
	schema map[string]any
}

// Registry maps component names to validated schema documents. It is safe for
// concurrent use; readers never observe a partially written entry.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]entry
	validator Validator
	logger    *zap.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(options ...Option) *Registry {
	r := &Registry{
		entries:   make(map[string]entry),
		validator: NewValidator(),
		logger:    zap.NewNop(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

// Register validates raw and stores it under name, replacing any previous
// schema with the same name. On failure the registry is left unchanged and a
// *model.Error of kind SchemaValidationError is returned.
func (r *Registry) Register(ctx context.Context, name string, raw []byte) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return model.SchemaValidationError("component name is required")
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		r.logger.Warn("component schema is not a JSON object", zap.String("component", trimmed))
		return model.SchemaValidationError("component %q: schema must be a JSON object", trimmed)
	}

	if err := r.validator.Validate(ctx, raw); err != nil {
		r.logger.Warn("component schema rejected",
			zap.String("component", trimmed),
			zap.Error(err),
		)
		return model.SchemaValidationError("component %q: %s", trimmed, issueMessage(err))
	}

	stored := entry{
		raw:    append([]byte(nil), raw...),
		schema: doc,
	}

	r.mu.Lock()
	_, replaced := r.entries[trimmed]
	r.entries[trimmed] = stored
	r.mu.Unlock()

	r.logger.Debug("component registered",
		zap.String("component", trimmed),
		zap.Bool("replaced", replaced),
	)
	return nil
}

// Lookup returns a deep copy of the schema registered under name.
func (r *Registry) Lookup(name string) (map[string]any, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	stored, ok := r.entries[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cloneMap(stored.schema), true
}

// LookupRaw returns a copy of the bytes that were registered under name.
func (r *Registry) LookupRaw(name string) ([]byte, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.entries[strings.TrimSpace(name)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), stored.raw...), true
}

// Has reports whether a schema is registered under name.
func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[strings.TrimSpace(name)]
	return ok
}

// Names returns the registered component names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for idx, item := range v {
			out[idx] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
