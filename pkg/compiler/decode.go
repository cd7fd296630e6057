package compiler

import (
	"bytes"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/goliatone/go-leafrender/pkg/model"
)

type templatePayload struct {
	Name       *string  `json:"name"`
	Source     *string  `json:"source"`
	Components []string `json:"components"`
}

// DecodeBatch extracts template definitions from a JSON array of entity
// documents. Entities without the reserved template key are skipped. Any
// malformed entry aborts the whole batch with a ParseError before anything is
// compiled.
func DecodeBatch(raw []byte) ([]model.TemplateDefinition, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, model.ParseError("template batch must be a JSON array")
	}

	var entities []json.RawMessage
	if err := json.Unmarshal(trimmed, &entities); err != nil {
		return nil, model.ParseError("invalid template batch: %s", firstLine(err.Error()))
	}

	defs := make([]model.TemplateDefinition, 0, len(entities))
	for i, rawEntity := range entities {
		var entity map[string]json.RawMessage
		if err := json.Unmarshal(rawEntity, &entity); err != nil || entity == nil {
			return nil, model.ParseError("entity %d: expected a JSON object", i)
		}

		rawPayload, ok := entity[model.TemplateEntityKey]
		if !ok {
			continue
		}

		var payload templatePayload
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			return nil, model.ParseError("entity %d: invalid template payload: %s", i, firstLine(err.Error()))
		}
		if payload.Name == nil || strings.TrimSpace(*payload.Name) == "" {
			return nil, model.ParseError("entity %d: template name is required", i)
		}
		if payload.Source == nil {
			return nil, model.ParseError("entity %d: template %q has no source", i, *payload.Name)
		}

		defs = append(defs, model.TemplateDefinition{
			Name:       *payload.Name,
			Source:     *payload.Source,
			Components: payload.Components,
		}.Normalize())
	}
	return defs, nil
}

func firstLine(msg string) string {
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		return msg[:idx]
	}
	return msg
}
