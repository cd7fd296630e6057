// Package pongo implements the template.Engine contract on top of pongo2.
package pongo

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/goliatone/go-leafrender/pkg/render/template"
	"github.com/goliatone/go-leafrender/pkg/render/template/freevars"
)

// Option configures the pongo2 engine before construction.
type Option func(*config)

type config struct {
	filters    map[string]FilterFunc
	globalData map[string]any
	autoescape bool
}

// WithFilters registers additional template filters when the engine loads.
// Filters are process-wide in pongo2, so the last engine to register a name
// wins. Names of built-in or default filters are rejected with
// ErrFilterExists.
func WithFilters(filters map[string]FilterFunc) Option {
	return func(cfg *config) {
		if len(filters) == 0 {
			return
		}
		if cfg.filters == nil {
			cfg.filters = make(map[string]FilterFunc, len(filters))
		}
		for name, fn := range filters {
			cfg.filters[strings.TrimSpace(name)] = fn
		}
	}
}

// WithGlobalData seeds values visible to every template. Global names are
// never reported as free variables.
func WithGlobalData(data map[string]any) Option {
	return func(cfg *config) {
		if len(data) == 0 {
			return
		}
		if cfg.globalData == nil {
			cfg.globalData = make(map[string]any, len(data))
		}
		for key, value := range data {
			cfg.globalData[strings.TrimSpace(key)] = value
		}
	}
}

// WithAutoescape toggles HTML escaping of printed values. pongo2 keeps this
// as a package-level switch, so the last engine constructed wins.
func WithAutoescape(enabled bool) Option {
	return func(cfg *config) {
		cfg.autoescape = enabled
	}
}

// Engine compiles each template into its own pongo2 template set whose loader
// resolves references through the caller supplied SourceResolver.
type Engine struct {
	globals pongo2.Context
}

var _ template.Engine = (*Engine)(nil)

// New constructs an Engine using the provided configuration options.
func New(options ...Option) (*Engine, error) {
	cfg := &config{}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(cfg)
	}

	pongo2.SetAutoescape(cfg.autoescape)
	registerDefaultFilters()

	for name, fn := range cfg.filters {
		if err := registerFilter(name, fn); err != nil {
			return nil, fmt.Errorf("pongo: register filter %q: %w", name, err)
		}
	}

	globals, err := convertToContext(cfg.globalData)
	if err != nil {
		return nil, fmt.Errorf("pongo: apply global data: %w", err)
	}

	return &Engine{globals: globals}, nil
}

type compiled struct {
	name  string
	tpl   *pongo2.Template
	paths []string
	roots []string
}

func (c *compiled) Name() string {
	return c.name
}

// Compile parses source under name. Static include, extends and import tags
// are resolved while parsing, so unresolved references surface here.
func (e *Engine) Compile(name, source string, deps template.SourceResolver) (template.Handle, error) {
	if e == nil {
		return nil, errors.New("pongo: engine is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("pongo: template name is required")
	}

	instrumented, ierr := instrument(source)

	set := pongo2.NewSet(name, newSourceLoader(name, instrumented, deps))
	set.Globals.Update(e.globals)
	set.Globals.Update(lookupGlobals)

	tpl, err := set.FromFile(name)
	if err != nil {
		return nil, translateError(name, err)
	}
	if ierr != nil {
		return nil, fmt.Errorf("pongo: analyze %q: %w", name, ierr)
	}

	paths, err := freevars.Analyze(source)
	if err != nil {
		return nil, fmt.Errorf("pongo: analyze %q: %w", name, err)
	}
	paths = e.withoutGlobals(paths)

	return &compiled{
		name:  name,
		tpl:   tpl,
		paths: paths,
		roots: freevars.Roots(paths),
	}, nil
}

// FreeVariables lists the variables the compiled template reads without
// defining them.
func (e *Engine) FreeVariables(h template.Handle, includeNested bool) []string {
	c, ok := h.(*compiled)
	if !ok || c == nil {
		return nil
	}
	src := c.roots
	if includeNested {
		src = c.paths
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Render executes the compiled template against data. Under UndefinedStrict
// the first reference evaluated against an absent value aborts the render;
// branches not taken and defaulted values are never checked.
func (e *Engine) Render(h template.Handle, data map[string]any, policy template.UndefinedPolicy) (string, error) {
	c, ok := h.(*compiled)
	if !ok || c == nil {
		return "", errors.New("pongo: handle was not produced by this engine")
	}

	viewContext, err := convertToContext(data)
	if err != nil {
		return "", fmt.Errorf("pongo: convert data: %w", err)
	}

	scope := &renderScope{policy: policy}
	viewContext[scopeKey] = scope

	var buf bytes.Buffer
	if err := c.tpl.ExecuteWriter(viewContext, &buf); err != nil {
		if scope.missing != "" {
			return "", &template.UndefinedVariableError{Template: c.name, Path: scope.missing}
		}
		return "", fmt.Errorf("pongo: execute template %q: %w", c.name, err)
	}
	return buf.String(), nil
}

func (e *Engine) withoutGlobals(paths []string) []string {
	if len(e.globals) == 0 {
		return paths
	}
	out := paths[:0]
	for _, path := range paths {
		root, _, _ := strings.Cut(path, ".")
		if _, ok := e.globals[root]; ok {
			continue
		}
		out = append(out, path)
	}
	return out
}

// translateError turns pongo2's "unable to resolve template" failures for
// referenced templates into MissingTemplateError.
func translateError(name string, err error) error {
	var perr *pongo2.Error
	if errors.As(err, &perr) && perr.Sender == "fromfile" && perr.Filename != "" && perr.Filename != name {
		return &template.MissingTemplateError{
			Names: []string{perr.Filename},
			Cause: err,
		}
	}
	return fmt.Errorf("pongo: compile %q: %w", name, err)
}
