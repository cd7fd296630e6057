// Package store keeps compiled templates addressable by name. A template only
// becomes visible once it has compiled and passed the caller's variable check;
// a failed compile never disturbs the entry it would have replaced.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-leafrender/pkg/model"
	"github.com/goliatone/go-leafrender/pkg/render/template"
)

// ErrTemplateNotFound is returned when no compiled template has the requested name.
var ErrTemplateNotFound = errors.New("store: template not found")

// CheckFunc inspects the free variables of a freshly compiled template before
// it is committed. A non-nil error aborts the commit.
type CheckFunc func(variables []string) error

// CompiledTemplate is an immutable snapshot of a committed template.
type CompiledTemplate struct {
	Name       string
	Source     string
	Components []string
	Variables  []string
	CompiledAt time.Time

	handle template.Handle
}

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a logger used to report commits.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used to stamp CompiledAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store maps template names to compiled templates.
type Store struct {
	mu      sync.RWMutex
	engine  template.Engine
	entries map[string]*CompiledTemplate
	logger  *zap.Logger
	now     func() time.Time
}

// New constructs an empty store backed by engine.
func New(engine template.Engine, options ...Option) *Store {
	s := &Store{
		engine:  engine,
		entries: make(map[string]*CompiledTemplate),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// Compile compiles def, runs check over its free variables and commits the
// result under def.Name. The store lock is held for the whole sequence so
// check may take short-lived read locks on other structures but must never
// call back into the store. Engine and check errors are returned unchanged.
func (s *Store) Compile(def model.TemplateDefinition, check CheckFunc) (*CompiledTemplate, error) {
	if s == nil || s.engine == nil {
		return nil, errors.New("store: engine is not configured")
	}
	def = def.Normalize()
	if def.Name == "" {
		return nil, errors.New("store: template name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	handle, err := s.engine.Compile(def.Name, def.Source, template.SourceResolverFunc(s.sourceLocked))
	if err != nil {
		return nil, err
	}

	variables := s.engine.FreeVariables(handle, true)
	if check != nil {
		if err := check(variables); err != nil {
			return nil, err
		}
	}

	compiled := &CompiledTemplate{
		Name:       def.Name,
		Source:     def.Source,
		Components: def.Components,
		Variables:  variables,
		CompiledAt: s.now(),
		handle:     handle,
	}
	_, replaced := s.entries[def.Name]
	s.entries[def.Name] = compiled

	s.logger.Debug("template committed",
		zap.String("template", def.Name),
		zap.Strings("variables", variables),
		zap.Bool("replaced", replaced),
	)
	return compiled, nil
}

// sourceLocked resolves template references for the engine. Callers must
// hold s.mu.
func (s *Store) sourceLocked(name string) (string, bool) {
	compiled, ok := s.entries[name]
	if !ok {
		return "", false
	}
	return compiled.Source, true
}

// Get returns the committed template registered under name.
func (s *Store) Get(name string) (*CompiledTemplate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	compiled, ok := s.entries[name]
	return compiled, ok
}

// Has reports whether name has a committed template.
func (s *Store) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Names returns the committed template names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FreeVariables lists the variables read by the template. With nested the
// full dotted paths are returned, otherwise their roots.
func (s *Store) FreeVariables(name string, nested bool) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	compiled, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return s.engine.FreeVariables(compiled.handle, nested), nil
}

// Render executes the named template. The read lock is held during execution
// so lazily resolved includes see a stable set of templates.
func (s *Store) Render(name string, data map[string]any, policy template.UndefinedPolicy) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	compiled, ok := s.entries[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return s.engine.Render(compiled.handle, data, policy)
}
