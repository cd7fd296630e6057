// Package abi implements the flat buffer calling convention: every operation
// reads its request from input bytes, encodes its result as JSON and copies
// as much of it as fits into a caller owned output buffer.
package abi

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/goliatone/go-leafrender/pkg/model"
)

// ComponentRegistrar stores component schemas.
type ComponentRegistrar interface {
	Register(ctx context.Context, name string, raw []byte) error
}

// BatchCompiler compiles a raw entity batch.
type BatchCompiler interface {
	CompileRaw(raw []byte) model.CompileResult
}

// TemplateRenderer renders a template from raw name and context bytes.
type TemplateRenderer interface {
	Render(name, rawContext []byte) model.RenderResult
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger attaches a logger used to report recovered panics and encoding
// failures.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Codec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Codec adapts the registry, compiler and renderer to byte buffers. It keeps
// no state between calls and never retains the buffers it is given.
type Codec struct {
	components ComponentRegistrar
	compiler   BatchCompiler
	renderer   TemplateRenderer
	logger     *zap.Logger
}

// NewCodec wires a Codec over the given collaborators.
func NewCodec(components ComponentRegistrar, compiler BatchCompiler, renderer TemplateRenderer, options ...Option) *Codec {
	c := &Codec{
		components: components,
		compiler:   compiler,
		renderer:   renderer,
		logger:     zap.NewNop(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c
}

// RegisterComponent expects a JSON pair ["name", {schema}] and writes a
// RegisterResult.
func (c *Codec) RegisterComponent(ctx context.Context, in, out []byte) (written int) {
	defer c.recoverInto("register_component", out, &written, func(msg string) any {
		return model.RegisterFailed(model.ParseError("%s", msg))
	})

	name, schema, err := decodeRegistration(in)
	if err != nil {
		return c.write(out, model.RegisterFailed(err))
	}
	if err := c.components.Register(ctx, name, schema); err != nil {
		return c.write(out, model.RegisterFailed(err))
	}
	return c.write(out, model.RegisterSucceeded())
}

// CompileTemplates expects a JSON array of entity documents and writes a
// CompileResult.
func (c *Codec) CompileTemplates(in, out []byte) (written int) {
	defer c.recoverInto("compile_templates", out, &written, func(msg string) any {
		return model.CompileFailed(model.ParseError("%s", msg))
	})
	return c.write(out, c.compiler.CompileRaw(in))
}

// RenderTemplate reads the template name and the JSON context from separate
// buffers and writes a RenderResult.
func (c *Codec) RenderTemplate(name, rawContext, out []byte) (written int) {
	defer c.recoverInto("render_template", out, &written, func(msg string) any {
		return model.RenderFailed(model.ParseError("%s", msg))
	})
	return c.write(out, c.renderer.Render(name, rawContext))
}

func decodeRegistration(in []byte) (string, []byte, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(in, &pair); err != nil || len(pair) != 2 {
		return "", nil, model.ParseError("component registration must be a JSON array [name, schema]")
	}
	var name string
	if err := json.Unmarshal(pair[0], &name); err != nil {
		return "", nil, model.ParseError("component name must be a string")
	}
	return name, pair[1], nil
}

func (c *Codec) write(out []byte, result any) int {
	payload, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("result encoding failed", zap.Error(err))
		payload = fallbackPayload(result)
	}
	return WriteTruncated(out, payload)
}

func (c *Codec) recoverInto(op string, out []byte, written *int, failure func(string) any) {
	recovered := recover()
	if recovered == nil {
		return
	}
	c.logger.Error("operation panicked",
		zap.String("operation", op),
		zap.String("panic", fmt.Sprint(recovered)),
	)
	*written = c.write(out, failure("internal error during "+op))
}

// fallbackPayload is written when a result cannot be encoded. The register
// envelope keeps its message at the top level.
func fallbackPayload(result any) []byte {
	if _, ok := result.(model.RegisterResult); ok {
		return []byte(`{"type":"Error","message":"failed to encode result"}`)
	}
	return []byte(`{"type":"Error","error":{"error_type":"ParseError","message":"failed to encode result"}}`)
}

// WriteTruncated copies payload into out and returns the number of bytes
// written. Payloads longer than len(out) are cut at len(out); nothing is ever
// written past it. A return value equal to len(out) may mean truncation.
func WriteTruncated(out, payload []byte) int {
	return copy(out, payload)
}
