// Package authorize decides whether the variables a template reads are
// declared by the components the template names as its data sources.
package authorize

import (
	"fmt"
	"strings"
)

// SchemaLookup resolves a component name to its schema document.
type SchemaLookup interface {
	Lookup(name string) (map[string]any, bool)
}

// UnauthorizedVariableError names the first variable no component declares.
type UnauthorizedVariableError struct {
	Variable string
}

func (e *UnauthorizedVariableError) Error() string {
	return fmt.Sprintf("variable %q is not declared by any component", e.Variable)
}

// Authorizer checks dotted variable paths against component schemas.
type Authorizer struct {
	schemas SchemaLookup
}

// New returns an Authorizer that resolves components through schemas.
func New(schemas SchemaLookup) *Authorizer {
	return &Authorizer{schemas: schemas}
}

// Authorize returns nil when every variable is reachable through the declared
// properties of at least one of the named components. Components that are not
// registered are ignored. When several variables are unauthorized only the
// first one encountered is reported.
func (a *Authorizer) Authorize(components []string, variables []string) error {
	schemas := a.resolve(components)
	for _, variable := range variables {
		if !Allowed(schemas, variable) {
			return &UnauthorizedVariableError{Variable: variable}
		}
	}
	return nil
}

func (a *Authorizer) resolve(components []string) []map[string]any {
	if a == nil || a.schemas == nil || len(components) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(components))
	for _, name := range components {
		schema, ok := a.schemas.Lookup(name)
		if !ok {
			continue
		}
		out = append(out, schema)
	}
	return out
}

// Allowed reports whether any of schemas declares the dotted path variable.
func Allowed(schemas []map[string]any, variable string) bool {
	segments := strings.Split(variable, ".")
	for _, schema := range schemas {
		if declares(schema, segments) {
			return true
		}
	}
	return false
}

// declares walks the properties objects of node one segment at a time. The
// last segment only has to exist; its own type is not inspected.
func declares(node map[string]any, segments []string) bool {
	if len(segments) == 0 || node == nil {
		return false
	}
	properties, ok := node["properties"].(map[string]any)
	if !ok {
		return false
	}
	child, ok := properties[segments[0]]
	if !ok {
		return false
	}
	if len(segments) == 1 {
		return true
	}
	next, ok := child.(map[string]any)
	if !ok {
		return false
	}
	return declares(next, segments[1:])
}
