package components

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-leafrender/pkg/model"
)

const nameSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string"}
  },
  "required": ["name"]
}`

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(context.Background(), "name_component", []byte(nameSchema)); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, ok := reg.Lookup("name_component")
	if !ok {
		t.Fatalf("expected schema to be registered")
	}
	want := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
		"required": []any{"name"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("lookup mismatch (-want +got):\n%s", diff)
	}

	raw, ok := reg.LookupRaw("name_component")
	if !ok || string(raw) != nameSchema {
		t.Fatalf("expected raw schema to round trip, got %q", raw)
	}
}

func TestRegistry_LookupReturnsCopy(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(context.Background(), "c", []byte(nameSchema)); err != nil {
		t.Fatalf("register: %v", err)
	}

	first, _ := reg.Lookup("c")
	first["properties"].(map[string]any)["injected"] = map[string]any{}

	second, _ := reg.Lookup("c")
	if _, leaked := second["properties"].(map[string]any)["injected"]; leaked {
		t.Fatalf("mutating a lookup result must not affect the registry")
	}
}

func TestRegistry_RejectsInvalidSchemas(t *testing.T) {
	cases := []struct {
		name   string
		schema string
	}{
		{name: "not json", schema: `{"type":`},
		{name: "not an object", schema: `["type", "object"]`},
		{name: "unknown type", schema: `{"type": "nope"}`},
		{name: "type list with unknown entry", schema: `{"type": ["string", "text"]}`},
		{name: "required not a list", schema: `{"required": "name"}`},
		{name: "invalid pattern", schema: `{"type": "string", "pattern": "("}`},
		{name: "unknown draft", schema: `{"$schema": "https://example.com/custom", "type": "object"}`},
		{name: "properties not an object", schema: `{"type": "object", "properties": "name"}`},
		{name: "nested unknown type", schema: `{"type": "object", "properties": {"name": {"type": "text"}}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry()
			err := reg.Register(context.Background(), "broken", []byte(tc.schema))
			if err == nil {
				t.Fatalf("expected schema %s to be rejected", tc.schema)
			}
			if !errors.Is(err, &model.Error{Kind: model.KindSchemaValidation}) {
				t.Fatalf("expected schema validation error, got %v", err)
			}
			if _, ok := reg.Lookup("broken"); ok {
				t.Fatalf("rejected schema must not be stored")
			}
		})
	}
}

func TestRegistry_FailedRegistrationKeepsPreviousSchema(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()
	if err := reg.Register(ctx, "c", []byte(nameSchema)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(ctx, "c", []byte(`{"type": "nope"}`)); err == nil {
		t.Fatalf("expected invalid schema to be rejected")
	}

	raw, ok := reg.LookupRaw("c")
	if !ok || string(raw) != nameSchema {
		t.Fatalf("expected original schema to survive, got %q", raw)
	}
}

func TestRegistry_ReRegistrationOverwrites(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()
	if err := reg.Register(ctx, "c", []byte(nameSchema)); err != nil {
		t.Fatalf("register: %v", err)
	}
	replacement := `{"type": "object", "properties": {"condition": {"type": "boolean"}}}`
	if err := reg.Register(ctx, "c", []byte(replacement)); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	got, _ := reg.Lookup("c")
	props := got["properties"].(map[string]any)
	if _, ok := props["condition"]; !ok {
		t.Fatalf("expected replacement schema, got %v", got)
	}
	if _, ok := props["name"]; ok {
		t.Fatalf("expected previous schema to be replaced, got %v", got)
	}
}

func TestRegistry_AcceptsJSONSchemaKeywords(t *testing.T) {
	cases := []struct {
		name   string
		schema string
	}{
		{name: "2020-12 document", schema: `{
		  "$schema": "https://json-schema.org/draft/2020-12/schema",
		  "$id": "urn:leaf:profile",
		  "type": "object",
		  "properties": {
		    "tags": {"type": "array", "items": {"type": "string"}},
		    "profile": {"type": "object", "properties": {"bio": {"type": "string"}}}
		  }
		}`},
		{name: "array without items", schema: `{"type": "array"}`},
		{name: "null type", schema: `{"type": "null"}`},
		{name: "type list", schema: `{"type": ["string", "null"]}`},
		{name: "prefix items", schema: `{"type": "array", "prefixItems": [{"type": "string"}, {"type": "number"}]}`},
		{name: "conditional", schema: `{"if": {"properties": {"kind": {"const": "a"}}}, "then": {"required": ["a"]}}`},
		{name: "local reference", schema: `{"$defs": {"name": {"type": "string"}}, "properties": {"name": {"$ref": "#/$defs/name"}}}`},
		{name: "draft-07", schema: `{"$schema": "http://json-schema.org/draft-07/schema#", "definitions": {}, "type": "object"}`},
		{name: "boolean subschema", schema: `{"type": "object", "additionalProperties": false}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry()
			if err := reg.Register(context.Background(), "c", []byte(tc.schema)); err != nil {
				t.Fatalf("register: %v", err)
			}
			raw, ok := reg.LookupRaw("c")
			if !ok || string(raw) != tc.schema {
				t.Fatalf("expected document to round trip, got %q", raw)
			}
		})
	}
}

func TestOpenAPIValidator(t *testing.T) {
	reg := NewRegistry(WithValidator(NewOpenAPIValidator()))
	ctx := context.Background()

	if err := reg.Register(ctx, "c", []byte(nameSchema)); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, schema := range []string{`{"type": "array"}`, `{"type": "null"}`} {
		if err := reg.Register(ctx, "strict", []byte(schema)); err == nil {
			t.Fatalf("expected OpenAPI dialect to reject %s", schema)
		}
	}
}

func TestValidatorFor(t *testing.T) {
	for _, dialect := range []string{"", "jsonschema", " OpenAPI "} {
		if _, err := ValidatorFor(dialect); err != nil {
			t.Fatalf("dialect %q: %v", dialect, err)
		}
	}
	if _, err := ValidatorFor("xml"); err == nil {
		t.Fatal("expected unknown dialect to fail")
	}
}

func TestRegistry_RequiresName(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(context.Background(), "  ", []byte(nameSchema)); err == nil {
		t.Fatalf("expected blank component name to be rejected")
	}
	if names := reg.Names(); len(names) != 0 {
		t.Fatalf("expected empty registry, got %v", names)
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()
	for _, name := range []string{"b", "a", "c"} {
		if err := reg.Register(ctx, name, []byte(nameSchema)); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, reg.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_CustomValidator(t *testing.T) {
	calls := 0
	reg := NewRegistry(WithValidator(ValidatorFunc(func(context.Context, []byte) error {
		calls++
		return errors.New("schema: rejected by policy")
	})))

	err := reg.Register(context.Background(), "c", []byte(nameSchema))
	if err == nil {
		t.Fatalf("expected custom validator to reject schema")
	}
	var typed *model.Error
	if !errors.As(err, &typed) || typed.Message != `component "c": rejected by policy` {
		t.Fatalf("unexpected error %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected validator to be called once, got %d", calls)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = reg.Register(ctx, "shared", []byte(nameSchema))
		}()
		go func() {
			defer wg.Done()
			reg.Lookup("shared")
		}()
	}
	wg.Wait()

	if !reg.Has("shared") {
		t.Fatalf("expected shared component to be registered")
	}
}
