package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/goliatone/go-leafrender/pkg/abi"
	"github.com/goliatone/go-leafrender/pkg/authorize"
	"github.com/goliatone/go-leafrender/pkg/compiler"
	"github.com/goliatone/go-leafrender/pkg/components"
	"github.com/goliatone/go-leafrender/pkg/model"
	"github.com/goliatone/go-leafrender/pkg/render"
	"github.com/goliatone/go-leafrender/pkg/render/template"
	"github.com/goliatone/go-leafrender/pkg/render/template/pongo"
	"github.com/goliatone/go-leafrender/pkg/store"
)

// Option customises the orchestrator configuration.
type Option func(*Orchestrator)

// WithLogger shares logger with every wired component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithEngine injects a template engine. When omitted a pongo2 engine is built
// from the filter and global data options.
func WithEngine(engine template.Engine) Option {
	return func(o *Orchestrator) {
		o.engine = engine
	}
}

// WithFilters registers additional filters on the default engine.
func WithFilters(filters map[string]pongo.FilterFunc) Option {
	return func(o *Orchestrator) {
		if len(filters) == 0 {
			return
		}
		o.engineOptions = append(o.engineOptions, pongo.WithFilters(filters))
	}
}

// WithGlobalData exposes values to every template rendered by the default
// engine.
func WithGlobalData(data map[string]any) Option {
	return func(o *Orchestrator) {
		if len(data) == 0 {
			return
		}
		o.engineOptions = append(o.engineOptions, pongo.WithGlobalData(data))
	}
}

// WithSchemaValidator replaces the structural validator used when
// components are registered.
func WithSchemaValidator(validator components.Validator) Option {
	return func(o *Orchestrator) {
		o.validator = validator
	}
}

// WithUndefinedPolicy overrides strict rendering. Only tooling previews should
// relax it.
func WithUndefinedPolicy(policy template.UndefinedPolicy) Option {
	return func(o *Orchestrator) {
		o.policy = policy
	}
}

// Orchestrator owns one registry and one template store for its lifetime.
// All operations are synchronous and safe for concurrent callers.
type Orchestrator struct {
	logger        *zap.Logger
	engine        template.Engine
	engineOptions []pongo.Option
	validator     components.Validator
	policy        template.UndefinedPolicy

	registry *components.Registry
	store    *store.Store
	pipeline *compiler.Pipeline
	renderer *render.Renderer
	codec    *abi.Codec
}

// New constructs an Orchestrator applying any provided options. Missing
// dependencies are initialised with the built-in implementations.
func New(options ...Option) (*Orchestrator, error) {
	o := &Orchestrator{policy: template.UndefinedStrict}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(o)
	}
	if err := o.applyDefaults(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) applyDefaults() error {
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.engine == nil {
		engine, err := pongo.New(o.engineOptions...)
		if err != nil {
			return fmt.Errorf("orchestrator: default engine: %w", err)
		}
		o.engine = engine
	}

	registryOptions := []components.Option{components.WithLogger(o.logger.Named("components"))}
	if o.validator != nil {
		registryOptions = append(registryOptions, components.WithValidator(o.validator))
	}
	o.registry = components.NewRegistry(registryOptions...)
	o.store = store.New(o.engine, store.WithLogger(o.logger.Named("store")))
	o.pipeline = compiler.New(o.store, authorize.New(o.registry), compiler.WithLogger(o.logger.Named("compiler")))
	o.renderer = render.New(o.store,
		render.WithLogger(o.logger.Named("render")),
		render.WithUndefinedPolicy(o.policy),
	)
	o.codec = abi.NewCodec(o.registry, o.pipeline, o.renderer, abi.WithLogger(o.logger.Named("abi")))
	return nil
}

// RegisterComponent validates schema and stores it under name.
func (o *Orchestrator) RegisterComponent(ctx context.Context, name string, schema []byte) error {
	return o.registry.Register(ctx, name, schema)
}

// CompileTemplates compiles a raw JSON entity batch.
func (o *Orchestrator) CompileTemplates(raw []byte) model.CompileResult {
	return o.pipeline.CompileRaw(raw)
}

// CompileDefinitions compiles already decoded definitions in order.
func (o *Orchestrator) CompileDefinitions(defs ...model.TemplateDefinition) model.CompileResult {
	return o.pipeline.CompileBatch(defs)
}

// Render executes the named template against data.
func (o *Orchestrator) Render(name string, data map[string]any) model.RenderResult {
	return o.renderer.RenderData(name, data)
}

// RenderJSON executes the named template against a raw JSON context.
func (o *Orchestrator) RenderJSON(name string, rawContext []byte) model.RenderResult {
	return o.renderer.Render([]byte(name), rawContext)
}

// FreeVariables lists the variables the named template reads.
func (o *Orchestrator) FreeVariables(name string, nested bool) ([]string, error) {
	return o.store.FreeVariables(name, nested)
}

// Templates lists the committed template names.
func (o *Orchestrator) Templates() []string {
	return o.store.Names()
}

// Components lists the registered component names.
func (o *Orchestrator) Components() []string {
	return o.registry.Names()
}

// Registry exposes the component registry.
func (o *Orchestrator) Registry() *components.Registry {
	return o.registry
}

// Store exposes the template store.
func (o *Orchestrator) Store() *store.Store {
	return o.store
}

// Codec exposes the buffer codec used by the WebAssembly exports.
func (o *Orchestrator) Codec() *abi.Codec {
	return o.codec
}
