package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/goliatone/go-leafrender/pkg/model"
)

// TemplateBatch encodes defs as the JSON entity batch accepted by the
// compiler. Every definition is wrapped under the reserved template key.
func TemplateBatch(t *testing.T, defs ...model.TemplateDefinition) []byte {
	t.Helper()

	entities := make([]map[string]model.TemplateDefinition, 0, len(defs))
	for _, def := range defs {
		entities = append(entities, map[string]model.TemplateDefinition{
			model.TemplateEntityKey: def,
		})
	}
	payload, err := json.Marshal(entities)
	if err != nil {
		t.Fatalf("marshal template batch: %v", err)
	}
	return payload
}

// ObjectSchema builds a JSON object schema whose properties are the given
// names, each typed as a string.
func ObjectSchema(t *testing.T, properties ...string) []byte {
	t.Helper()

	props := make(map[string]any, len(properties))
	for _, name := range properties {
		props[name] = map[string]any{"type": "string"}
	}
	payload, err := json.Marshal(map[string]any{
		"type":       "object",
		"properties": props,
	})
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	return payload
}

// MustReadFixture reads a fixture file relative to the calling package.
func MustReadFixture(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

// WriteMaybeGolden updates a golden file when UPDATE_GOLDENS is set. Returns
// true if the golden was written (test should exit early).
func WriteMaybeGolden(t *testing.T, path string, data []byte) bool {
	t.Helper()
	if os.Getenv("UPDATE_GOLDENS") == "" {
		return false
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir golden dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
	return true
}

// MustReadGoldenString reads a golden file and returns its string content.
func MustReadGoldenString(t *testing.T, path string) string {
	t.Helper()
	return string(MustReadFixture(t, path))
}
