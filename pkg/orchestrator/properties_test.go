package orchestrator_test

import (
	"context"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/goliatone/go-leafrender/pkg/model"
	"github.com/goliatone/go-leafrender/pkg/testsupport"
)

func TestProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	// Prefixes keep generated identifiers clear of template keywords.
	variable := gen.Identifier().Map(func(id string) string { return "v_" + id })

	properties.Property("registered schemas read back unchanged", prop.ForAll(
		func(props []string) bool {
			o := newOrchestrator(t)
			raw := testsupport.ObjectSchema(t, props...)
			if err := o.RegisterComponent(context.Background(), "c", raw); err != nil {
				return false
			}
			var want map[string]any
			if err := json.Unmarshal(raw, &want); err != nil {
				return false
			}
			got, ok := o.Registry().Lookup("c")
			return ok && cmp.Equal(want, got)
		},
		gen.SliceOf(variable),
	))

	properties.Property("structurally invalid schemas are never stored", prop.ForAll(
		func(kind string) bool {
			o := newOrchestrator(t)
			raw := []byte(`{"type": "x` + kind + `"}`)
			if err := o.RegisterComponent(context.Background(), "c", raw); err == nil {
				return false
			}
			_, ok := o.Registry().Lookup("c")
			return !ok
		},
		gen.AlphaString(),
	))

	properties.Property("declared variables compile and render", prop.ForAll(
		func(name, value string) bool {
			o := newOrchestrator(t)
			if err := o.RegisterComponent(context.Background(), "c", testsupport.ObjectSchema(t, name)); err != nil {
				return false
			}
			result := o.CompileDefinitions(model.TemplateDefinition{
				Name:       "t",
				Source:     "<{{ " + name + " }}>",
				Components: []string{"c"},
			})
			if !result.OK() {
				return false
			}
			return cmp.Equal(model.RenderSucceeded("<"+value+">"), o.Render("t", map[string]any{name: value}))
		},
		variable,
		gen.AlphaString(),
	))

	properties.Property("undeclared variables are rejected by name", prop.ForAll(
		func(declared, used string) bool {
			used = "w_" + used
			o := newOrchestrator(t)
			if err := o.RegisterComponent(context.Background(), "c", testsupport.ObjectSchema(t, declared)); err != nil {
				return false
			}
			result := o.CompileDefinitions(model.TemplateDefinition{
				Name:       "t",
				Source:     "{{ " + declared + " }}{{ " + used + " }}",
				Components: []string{"c"},
			})
			return !result.OK() &&
				result.Error.Kind == model.KindCompileError &&
				strings.Contains(result.Error.Message, used) &&
				len(o.Templates()) == 0
		},
		variable,
		gen.Identifier(),
	))

	properties.Property("recompiling replaces the previous template", prop.ForAll(
		func(first, second string) bool {
			o := newOrchestrator(t)
			for _, source := range []string{first, second} {
				if !o.CompileDefinitions(model.TemplateDefinition{Name: "same", Source: source}).OK() {
					return false
				}
			}
			return cmp.Equal(model.RenderSucceeded(second), o.Render("same", nil))
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	shared := newOrchestrator(t)
	if !shared.CompileDefinitions(model.TemplateDefinition{Name: "greet", Source: "Hello {{ name }}!"}).OK() {
		t.Fatal("compile greet")
	}

	properties.Property("output keeps template whitespace exactly", prop.ForAll(
		func(name string) bool {
			return cmp.Equal(model.RenderSucceeded("Hello "+name+"!"), shared.Render("greet", map[string]any{"name": name}))
		},
		gen.AlphaString(),
	))

	properties.Property("bytes written never exceed capacity", prop.ForAll(
		func(capacity int) bool {
			ctx := []byte(`{"name": "World"}`)
			full, err := json.Marshal(shared.RenderJSON("greet", ctx))
			if err != nil {
				return false
			}
			out := make([]byte, capacity)
			n := shared.Codec().RenderTemplate([]byte("greet"), ctx, out)
			want := len(full)
			if capacity < want {
				want = capacity
			}
			return n == want && string(out[:n]) == string(full[:n])
		},
		gen.IntRange(0, 128),
	))

	properties.Property("malformed envelopes are parse errors without side effects", prop.ForAll(
		func(raw string) bool {
			before := shared.Templates()
			result := shared.CompileTemplates([]byte(raw))
			return !result.OK() &&
				result.Error.Kind == model.KindParseError &&
				cmp.Equal(before, shared.Templates())
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
