package render

import (
	"errors"
	"strings"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/goliatone/go-leafrender/pkg/model"
	"github.com/goliatone/go-leafrender/pkg/render/template"
	"github.com/goliatone/go-leafrender/pkg/store"
)

// Fixed messages reported to callers. Engine diagnostics never cross the
// boundary; they are logged instead.
const (
	MsgInvalidName      = "invalid template name"
	MsgTemplateNotFound = "template not found"
	MsgInvalidContext   = "invalid context"
	MsgRenderFailed     = "failed to render template"
)

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger attaches a logger used to record engine diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithUndefinedPolicy overrides the strict default. Lenient rendering exists
// for tooling previews only.
func WithUndefinedPolicy(policy template.UndefinedPolicy) Option {
	return func(r *Renderer) {
		r.policy = policy
	}
}

// Renderer executes committed templates against JSON contexts.
type Renderer struct {
	store  *store.Store
	policy template.UndefinedPolicy
	logger *zap.Logger
}

// New constructs a Renderer reading from templates.
func New(templates *store.Store, options ...Option) *Renderer {
	r := &Renderer{
		store:  templates,
		policy: template.UndefinedStrict,
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

// Render looks up the template named by the raw name bytes, trimmed the same
// way compiled names are, and executes it against the JSON document in rawContext. A null document is an empty
// context; any other non-object document is rejected.
func (r *Renderer) Render(name, rawContext []byte) model.RenderResult {
	if !utf8.Valid(name) {
		return model.RenderFailed(model.ParseError(MsgInvalidName))
	}
	templateName := strings.TrimSpace(string(name))
	if r == nil || r.store == nil || !r.store.Has(templateName) {
		return model.RenderFailed(model.ParseError(MsgTemplateNotFound))
	}

	data, err := DecodeContext(rawContext)
	if err != nil {
		r.logger.Debug("render context rejected", zap.String("template", templateName), zap.Error(err))
		return model.RenderFailed(model.ParseError(MsgInvalidContext))
	}
	return r.execute(templateName, data)
}

// RenderData executes the named template against an already decoded context.
func (r *Renderer) RenderData(name string, data map[string]any) model.RenderResult {
	name = strings.TrimSpace(name)
	if r == nil || r.store == nil || !r.store.Has(name) {
		return model.RenderFailed(model.ParseError(MsgTemplateNotFound))
	}
	if data == nil {
		data = map[string]any{}
	}
	return r.execute(name, data)
}

func (r *Renderer) execute(name string, data map[string]any) model.RenderResult {
	out, err := r.store.Render(name, data, r.policy)
	if err != nil {
		if errors.Is(err, store.ErrTemplateNotFound) {
			return model.RenderFailed(model.ParseError(MsgTemplateNotFound))
		}
		r.logger.Debug("template execution failed",
			zap.String("template", name),
			zap.String("policy", r.policy.String()),
			zap.Error(err),
		)
		return model.RenderFailed(model.RenderError(MsgRenderFailed))
	}
	return model.RenderSucceeded(out)
}

var errContextNotObject = errors.New("render: context must be a JSON object")

// DecodeContext parses a render context document.
func DecodeContext(raw []byte) (map[string]any, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	switch v := doc.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	default:
		return nil, errContextNotObject
	}
}
