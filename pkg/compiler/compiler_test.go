package compiler_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-leafrender/pkg/authorize"
	"github.com/goliatone/go-leafrender/pkg/compiler"
	"github.com/goliatone/go-leafrender/pkg/components"
	"github.com/goliatone/go-leafrender/pkg/model"
	"github.com/goliatone/go-leafrender/pkg/render/template"
	"github.com/goliatone/go-leafrender/pkg/render/template/pongo"
	"github.com/goliatone/go-leafrender/pkg/store"
)

type fixture struct {
	registry *components.Registry
	store    *store.Store
	pipeline *compiler.Pipeline
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	engine, err := pongo.New()
	require.NoError(t, err)

	registry := components.NewRegistry()
	templates := store.New(engine)
	return fixture{
		registry: registry,
		store:    templates,
		pipeline: compiler.New(templates, authorize.New(registry)),
	}
}

func (f fixture) register(t *testing.T, name, schema string) {
	t.Helper()
	require.NoError(t, f.registry.Register(context.Background(), name, []byte(schema)))
}

func entity(name, source string, components ...string) map[string]any {
	payload := map[string]any{"name": name, "source": source}
	if components != nil {
		payload["components"] = components
	}
	return map[string]any{model.TemplateEntityKey: payload}
}

func batch(t *testing.T, entities ...any) []byte {
	t.Helper()
	raw, err := json.Marshal(entities)
	require.NoError(t, err)
	return raw
}

func TestPipeline_AuthorizedTemplateCompiles(t *testing.T) {
	f := newFixture(t)
	f.register(t, "flag_component", `{"type":"object","properties":{"condition":{"type":"boolean"}}}`)

	result := f.pipeline.CompileRaw(batch(t,
		entity("test2", "{% if condition %}True{% else %}False{% endif %}", "flag_component"),
	))
	require.True(t, result.OK(), "unexpected error: %+v", result.Error)

	for condition, want := range map[bool]string{true: "True", false: "False"} {
		out, err := f.store.Render("test2", map[string]any{"condition": condition}, template.UndefinedStrict)
		require.NoError(t, err)
		assert.Equal(t, want, out)
	}
}

func TestPipeline_UnauthorizedVariable(t *testing.T) {
	f := newFixture(t)

	result := f.pipeline.CompileRaw(batch(t, entity("test3", "{{ unauthorised_variable }}")))
	require.False(t, result.OK())
	assert.Equal(t, model.KindCompileError, result.Error.Kind)
	assert.Contains(t, result.Error.Message, "unauthorised_variable")
	assert.False(t, f.store.Has("test3"))
}

func TestPipeline_NestedAndLoopVariables(t *testing.T) {
	f := newFixture(t)
	f.register(t, "order", `{
		"type": "object",
		"properties": {
			"customer": {"type": "object", "properties": {"name": {"type": "string"}}},
			"lines": {"type": "array", "items": {"type": "object"}}
		}
	}`)

	ok := f.pipeline.Compile(model.TemplateDefinition{
		Name:       "invoice",
		Source:     "{{ customer.name }}{% for line in lines %}{{ line.sku }}{% endfor %}",
		Components: []string{"order"},
	})
	assert.Nil(t, ok)

	failed := f.pipeline.Compile(model.TemplateDefinition{
		Name:       "invoice",
		Source:     "{{ customer.email }}",
		Components: []string{"order", "unknown"},
	})
	require.NotNil(t, failed)
	assert.Equal(t, model.KindCompileError, failed.Kind)
	assert.Contains(t, failed.Message, "customer.email")

	compiled, found := f.store.Get("invoice")
	require.True(t, found)
	assert.Equal(t, []string{"customer.name", "lines"}, compiled.Variables)
}

func TestPipeline_MissingDependency(t *testing.T) {
	f := newFixture(t)

	result := f.pipeline.CompileRaw(batch(t, entity("page", `{% include "header" %}`)))
	require.False(t, result.OK())
	assert.Equal(t, model.KindMissingDependency, result.Error.Kind)
	assert.Equal(t, []string{"header"}, result.Error.MissingDependencies)

	result = f.pipeline.CompileRaw(batch(t,
		entity("header", "<h1>static</h1>"),
		entity("page", `{% include "header" %}`),
	))
	require.True(t, result.OK(), "unexpected error: %+v", result.Error)
}

func TestPipeline_FailFastKeepsEarlierTemplates(t *testing.T) {
	f := newFixture(t)

	result := f.pipeline.CompileRaw(batch(t,
		entity("first", "one"),
		entity("second", "{% if %}"),
		entity("third", "three"),
	))
	require.False(t, result.OK())
	assert.Equal(t, model.KindCompileError, result.Error.Kind)
	assert.Contains(t, result.Error.Message, `template "second"`)

	assert.Equal(t, []string{"first"}, f.store.Names())
}

func TestPipeline_SkipsForeignEntities(t *testing.T) {
	f := newFixture(t)

	result := f.pipeline.CompileRaw(batch(t,
		map[string]any{"position:01H": map[string]any{"x": 1}},
		entity("only", "static"),
	))
	require.True(t, result.OK())
	assert.Equal(t, []string{"only"}, f.store.Names())
}

func TestPipeline_MalformedEnvelopeDoesNotMutate(t *testing.T) {
	f := newFixture(t)

	for _, raw := range []string{``, `{}`, `null`, `[`, `[1]`, `not json`} {
		t.Run(raw, func(t *testing.T) {
			result := f.pipeline.CompileRaw([]byte(raw))
			require.False(t, result.OK())
			assert.Equal(t, model.KindParseError, result.Error.Kind)
		})
	}
	assert.Empty(t, f.store.Names())
}

func TestPipeline_RecompileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.register(t, "name_component", `{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`)

	for _, source := range []string{"Hello {{ name }}!", "Bye {{ name }}!"} {
		result := f.pipeline.CompileRaw(batch(t, entity("greet", source, "name_component")))
		require.True(t, result.OK())
	}

	out, err := f.store.Render("greet", map[string]any{"name": "World"}, template.UndefinedStrict)
	require.NoError(t, err)
	assert.Equal(t, "Bye World!", out)
}

func TestDecodeBatch(t *testing.T) {
	defs, err := compiler.DecodeBatch([]byte(`[
		{"other": {}},
		{"` + model.TemplateEntityKey + `": {"name": " a ", "source": "x", "components": ["c1", "", "c2"]}},
		{"` + model.TemplateEntityKey + `": {"name": "b", "source": ""}}
	]`))
	require.NoError(t, err)
	assert.Equal(t, []model.TemplateDefinition{
		{Name: "a", Source: "x", Components: []string{"c1", "c2"}},
		{Name: "b", Source: ""},
	}, defs)

	defs, err = compiler.DecodeBatch([]byte(` [] `))
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestDecodeBatch_Errors(t *testing.T) {
	key := model.TemplateEntityKey
	tests := map[string]string{
		"not array":          `{"a": 1}`,
		"null":               `null`,
		"entry not object":   `["x"]`,
		"null entry":         `[null]`,
		"payload not object": fmt.Sprintf(`[{%q: "tpl"}]`, key),
		"missing name":       fmt.Sprintf(`[{%q: {"source": "x"}}]`, key),
		"blank name":         fmt.Sprintf(`[{%q: {"name": " ", "source": "x"}}]`, key),
		"missing source":     fmt.Sprintf(`[{%q: {"name": "a"}}]`, key),
		"bad components":     fmt.Sprintf(`[{%q: {"name": "a", "source": "x", "components": [1]}}]`, key),
		"name wrong type":    fmt.Sprintf(`[{%q: {"name": 3, "source": "x"}}]`, key),
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := compiler.DecodeBatch([]byte(raw))
			var classified *model.Error
			require.True(t, errors.As(err, &classified), "expected *model.Error, got %v", err)
			assert.Equal(t, model.KindParseError, classified.Kind)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    model.ErrorKind
		deps    []string
		message string
	}{
		{
			name: "structured missing template",
			err:  fmt.Errorf("wrapped: %w", &template.MissingTemplateError{Names: []string{"a", "b", "a"}}),
			kind: model.KindMissingDependency,
			deps: []string{"a", "b"},
		},
		{
			name:    "text marker",
			err:     errors.New(`template not found: "a", b , a`),
			kind:    model.KindMissingDependency,
			deps:    []string{"a", "b"},
			message: `template not found: "a", b , a`,
		},
		{
			name: "text marker without names",
			err:  errors.New("template not found:"),
			kind: model.KindMissingDependency,
		},
		{
			name:    "unknown tag is not a dependency",
			err:     errors.New("Tag 'foo' not found (or beginning tag not provided)"),
			kind:    model.KindCompileError,
			message: "Tag 'foo' not found (or beginning tag not provided)",
		},
		{
			name:    "unauthorized variable",
			err:     &authorize.UnauthorizedVariableError{Variable: "secret"},
			kind:    model.KindCompileError,
			message: `variable "secret" is not declared by any component`,
		},
		{
			name:    "already classified",
			err:     model.ParseError("bad"),
			kind:    model.KindParseError,
			message: "bad",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compiler.Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.kind, got.Kind)
			if tt.deps == nil {
				assert.Empty(t, got.MissingDependencies)
			} else {
				assert.Equal(t, tt.deps, got.MissingDependencies)
			}
			if tt.message != "" {
				assert.Equal(t, tt.message, got.Message)
			}
		})
	}

	assert.Nil(t, compiler.Classify(nil))
}
