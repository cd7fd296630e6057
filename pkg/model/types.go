package model

import "strings"

// TemplateEntityKey is the reserved component key under which hosts store a
// template definition inside an entity document.
const TemplateEntityKey = "template:01JVK339CW6Q67VAMXCA7XAK7D"

// TemplateDefinition describes a template submitted for compilation together
// with the components it is allowed to read from.
type TemplateDefinition struct {
	Name       string   `json:"name"`
	Source     string   `json:"source"`
	Components []string `json:"components"`
}

// Normalize trims the template name and drops blank component references while
// preserving declaration order.
func (d TemplateDefinition) Normalize() TemplateDefinition {
	out := TemplateDefinition{
		Name:   strings.TrimSpace(d.Name),
		Source: d.Source,
	}
	if len(d.Components) == 0 {
		return out
	}
	out.Components = make([]string, 0, len(d.Components))
	for _, component := range d.Components {
		trimmed := strings.TrimSpace(component)
		if trimmed == "" {
			continue
		}
		out.Components = append(out.Components, trimmed)
	}
	return out
}
