// Package wasmhost loads the leafrender WebAssembly reactor with wazero and
// drives its exports through the flat buffer calling convention.
package wasmhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/goliatone/go-leafrender/pkg/model"
)

// DefaultCapacity is the output buffer size used when none is configured.
const DefaultCapacity = 64 * 1024

// ErrTruncated is returned when an envelope filled the whole output buffer
// and could not be decoded.
var ErrTruncated = errors.New("wasmhost: result truncated")

// Option configures a Client.
type Option func(*Client)

// WithCapacity sets the output buffer size handed to every export.
func WithCapacity(capacity uint32) Option {
	return func(c *Client) {
		if capacity > 0 {
			c.capacity = capacity
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStderr receives the guest's stderr, where it writes its log lines.
func WithStderr(w io.Writer) Option {
	return func(c *Client) {
		c.stderr = w
	}
}

// Client owns one instance of the reactor. Guest calls are serialised.
type Client struct {
	mu       sync.Mutex
	runtime  wazero.Runtime
	module   api.Module
	capacity uint32
	logger   *zap.Logger
	stderr   io.Writer

	alloc    api.Function
	dealloc  api.Function
	register api.Function
	compile  api.Function
	render   api.Function
}

// Load compiles and instantiates wasm, running its reactor initialiser.
func Load(ctx context.Context, wasm []byte, options ...Option) (*Client, error) {
	c := &Client{
		capacity: DefaultCapacity,
		logger:   zap.NewNop(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(c)
	}

	c.runtime = wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, c.runtime); err != nil {
		_ = c.runtime.Close(ctx)
		return nil, fmt.Errorf("wasmhost: instantiate WASI: %w", err)
	}

	compiled, err := c.runtime.CompileModule(ctx, wasm)
	if err != nil {
		_ = c.runtime.Close(ctx)
		return nil, fmt.Errorf("wasmhost: compile module: %w", err)
	}

	cfg := wazero.NewModuleConfig().WithStartFunctions("_initialize")
	if c.stderr != nil {
		cfg = cfg.WithStderr(c.stderr)
	}
	c.module, err = c.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		_ = c.runtime.Close(ctx)
		return nil, fmt.Errorf("wasmhost: instantiate module: %w", err)
	}

	for name, dst := range map[string]*api.Function{
		"alloc":              &c.alloc,
		"dealloc":            &c.dealloc,
		"register_component": &c.register,
		"compile_templates":  &c.compile,
		"render_template":    &c.render,
	} {
		fn := c.module.ExportedFunction(name)
		if fn == nil {
			_ = c.runtime.Close(ctx)
			return nil, fmt.Errorf("wasmhost: module does not export %q", name)
		}
		*dst = fn
	}

	c.logger.Debug("reactor loaded", zap.Uint32("capacity", c.capacity))
	return c, nil
}

// Close releases the instance and its runtime.
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.runtime == nil {
		return nil
	}
	return c.runtime.Close(ctx)
}

// RegisterComponent registers schema under name inside the guest.
func (c *Client) RegisterComponent(ctx context.Context, name string, schema []byte) (model.RegisterResult, error) {
	nameJSON, err := json.Marshal(name)
	if err != nil {
		return model.RegisterResult{}, err
	}
	in := make([]byte, 0, len(nameJSON)+len(schema)+3)
	in = append(in, '[')
	in = append(in, nameJSON...)
	in = append(in, ',')
	in = append(in, schema...)
	in = append(in, ']')

	var result model.RegisterResult
	raw, err := c.call(ctx, c.register, in)
	if err != nil {
		return result, err
	}
	return result, decodeEnvelope(raw, c.capacity, &result)
}

// CompileTemplates submits a JSON entity batch.
func (c *Client) CompileTemplates(ctx context.Context, batch []byte) (model.CompileResult, error) {
	var result model.CompileResult
	raw, err := c.call(ctx, c.compile, batch)
	if err != nil {
		return result, err
	}
	return result, decodeEnvelope(raw, c.capacity, &result)
}

// RenderTemplate renders name against a JSON context.
func (c *Client) RenderTemplate(ctx context.Context, name string, rawContext []byte) (model.RenderResult, error) {
	var result model.RenderResult
	raw, err := c.call(ctx, c.render, []byte(name), rawContext)
	if err != nil {
		return result, err
	}
	return result, decodeEnvelope(raw, c.capacity, &result)
}

// call copies inputs into guest memory, invokes fn with (ptr, len) pairs
// followed by the output buffer and returns the bytes the guest wrote.
func (c *Client) call(ctx context.Context, fn api.Function, inputs ...[]byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var held []uint32
	defer func() {
		for _, ptr := range held {
			if _, err := c.dealloc.Call(ctx, uint64(ptr)); err != nil {
				c.logger.Warn("dealloc failed", zap.Uint32("ptr", ptr), zap.Error(err))
			}
		}
	}()

	params := make([]uint64, 0, 2*len(inputs)+2)
	for _, in := range inputs {
		ptr, err := c.write(ctx, in)
		if err != nil {
			return nil, err
		}
		if ptr != 0 {
			held = append(held, ptr)
		}
		params = append(params, uint64(ptr), uint64(len(in)))
	}

	outPtr, err := c.allocate(ctx, c.capacity)
	if err != nil {
		return nil, err
	}
	held = append(held, outPtr)
	params = append(params, uint64(outPtr), uint64(c.capacity))

	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("wasmhost: call %s: %w", fn.Definition().Name(), err)
	}
	n := uint32(results[0])
	if n > c.capacity {
		return nil, fmt.Errorf("wasmhost: guest reported %d bytes for a %d byte buffer", n, c.capacity)
	}
	out, ok := c.module.Memory().Read(outPtr, n)
	if !ok {
		return nil, fmt.Errorf("wasmhost: read %d bytes at %d out of range", n, outPtr)
	}
	return append([]byte(nil), out...), nil
}

func (c *Client) write(ctx context.Context, data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, nil
	}
	ptr, err := c.allocate(ctx, uint32(len(data)))
	if err != nil {
		return 0, err
	}
	if !c.module.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("wasmhost: write %d bytes at %d out of range", len(data), ptr)
	}
	return ptr, nil
}

func (c *Client) allocate(ctx context.Context, size uint32) (uint32, error) {
	results, err := c.alloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("wasmhost: alloc %d: %w", size, err)
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, fmt.Errorf("wasmhost: alloc %d returned null", size)
	}
	return ptr, nil
}

// decodeEnvelope decodes a result written into a buffer of the given
// capacity. A payload that fills the buffer and fails to decode is reported
// as ErrTruncated.
func decodeEnvelope(raw []byte, capacity uint32, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		if uint32(len(raw)) == capacity {
			return fmt.Errorf("%w at %d bytes", ErrTruncated, capacity)
		}
		return fmt.Errorf("wasmhost: decode result: %w", err)
	}
	return nil
}
