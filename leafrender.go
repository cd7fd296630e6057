// Package leafrender compiles named templates whose variables must be declared
// by registered component schemas, and renders them under strict undefined
// semantics.
package leafrender

import (
	"context"
	"io/fs"

	"go.uber.org/zap"

	"github.com/goliatone/go-leafrender/pkg/bundle"
	"github.com/goliatone/go-leafrender/pkg/model"
	"github.com/goliatone/go-leafrender/pkg/orchestrator"
	"github.com/goliatone/go-leafrender/pkg/render/template"
	"github.com/goliatone/go-leafrender/pkg/render/template/pongo"
)

// Runtime aliases the orchestrator so callers only import the root package.
type Runtime = orchestrator.Orchestrator

// Option configures a Runtime.
type Option = orchestrator.Option

// TemplateDefinition describes a template submitted for compilation.
type TemplateDefinition = model.TemplateDefinition

// FilterFunc is a template filter over plain Go values.
type FilterFunc = pongo.FilterFunc

// New builds a Runtime with its own component registry and template store.
func New(options ...Option) (*Runtime, error) {
	return orchestrator.New(options...)
}

// WithLogger shares logger with every component of the runtime.
func WithLogger(logger *zap.Logger) Option {
	return orchestrator.WithLogger(logger)
}

// WithEngine replaces the default pongo2 engine.
func WithEngine(engine template.Engine) Option {
	return orchestrator.WithEngine(engine)
}

// WithFilters registers additional template filters.
func WithFilters(filters map[string]FilterFunc) Option {
	return orchestrator.WithFilters(filters)
}

// WithGlobalData exposes values to every template.
func WithGlobalData(data map[string]any) Option {
	return orchestrator.WithGlobalData(data)
}

// LoadBundle reads every manifest in fsys and applies it to rt.
func LoadBundle(ctx context.Context, rt *Runtime, fsys fs.FS) (*bundle.Bundle, error) {
	b, err := bundle.LoadFS(fsys)
	if err != nil {
		return nil, err
	}
	if err := b.Apply(ctx, rt); err != nil {
		return b, err
	}
	return b, nil
}

// StarterBundle exposes the embedded starter manifest.
func StarterBundle() fs.FS {
	return bundle.StarterFS()
}
