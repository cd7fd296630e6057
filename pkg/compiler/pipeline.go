// Package compiler turns batches of template definitions into committed
// templates, authorizing every free variable against the components each
// template declares.
package compiler

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/goliatone/go-leafrender/pkg/model"
	"github.com/goliatone/go-leafrender/pkg/store"
)

// Authorizer decides whether variables are reachable through components.
type Authorizer interface {
	Authorize(components []string, variables []string) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger attaches a logger used to report compile outcomes.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Pipeline compiles definitions sequentially and stops at the first failure.
// Definitions committed before the failure stay committed.
type Pipeline struct {
	store      *store.Store
	authorizer Authorizer
	logger     *zap.Logger
}

// New constructs a Pipeline that commits into templates and authorizes with
// authorizer.
func New(templates *store.Store, authorizer Authorizer, options ...Option) *Pipeline {
	p := &Pipeline{
		store:      templates,
		authorizer: authorizer,
		logger:     zap.NewNop(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(p)
	}
	return p
}

// CompileRaw decodes a JSON entity batch and compiles it. Decoding failures
// are reported before any template is touched.
func (p *Pipeline) CompileRaw(raw []byte) model.CompileResult {
	defs, err := DecodeBatch(raw)
	if err != nil {
		classified := Classify(err)
		p.logger.Warn("template batch rejected", zap.String("error_type", string(classified.Kind)), zap.Error(err))
		return model.CompileFailed(classified)
	}
	return p.CompileBatch(defs)
}

// CompileBatch compiles defs in order.
func (p *Pipeline) CompileBatch(defs []model.TemplateDefinition) model.CompileResult {
	for _, def := range defs {
		if err := p.Compile(def); err != nil {
			return model.CompileFailed(err)
		}
	}
	p.logger.Debug("template batch compiled", zap.Int("templates", len(defs)))
	return model.CompileSucceeded()
}

// Compile compiles a single definition and returns the classified failure,
// if any.
func (p *Pipeline) Compile(def model.TemplateDefinition) *model.Error {
	if p == nil || p.store == nil {
		return model.CompileError("compiler is not configured")
	}
	def = def.Normalize()

	_, err := p.store.Compile(def, func(variables []string) error {
		if p.authorizer == nil {
			return nil
		}
		return p.authorizer.Authorize(def.Components, variables)
	})
	if err != nil {
		classified := Classify(err)
		if def.Name != "" {
			classified = &model.Error{
				Kind:                classified.Kind,
				Message:             fmt.Sprintf("template %q: %s", def.Name, classified.Message),
				MissingDependencies: classified.MissingDependencies,
			}
		}
		p.logger.Warn("template compile failed",
			zap.String("template", def.Name),
			zap.Strings("components", def.Components),
			zap.String("error_type", string(classified.Kind)),
			zap.Error(err),
		)
		return classified
	}

	p.logger.Debug("template compiled",
		zap.String("template", def.Name),
		zap.Strings("components", def.Components),
	)
	return nil
}
