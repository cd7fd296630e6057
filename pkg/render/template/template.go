package template

import (
	"fmt"
	"strings"
)

// UndefinedPolicy controls how references to absent context values behave.
type UndefinedPolicy int

const (
	// UndefinedLenient renders absent values as empty output.
	UndefinedLenient UndefinedPolicy = iota
	// UndefinedStrict fails the render when a referenced value is absent.
	UndefinedStrict
)

func (p UndefinedPolicy) String() string {
	switch p {
	case UndefinedStrict:
		return "strict"
	default:
		return "lenient"
	}
}

// SourceResolver exposes the sources of already compiled templates so engines
// can resolve include, extends and import references.
type SourceResolver interface {
	Source(name string) (string, bool)
}

// SourceResolverFunc adapts a function to SourceResolver.
type SourceResolverFunc func(name string) (string, bool)

// Source calls f.
func (f SourceResolverFunc) Source(name string) (string, bool) {
	return f(name)
}

// Handle is an opaque compiled template owned by an Engine.
type Handle interface {
	Name() string
}

// Engine compiles and executes templates.
type Engine interface {
	// Compile parses source under name. References to other templates are
	// resolved through deps; unresolved ones yield *MissingTemplateError.
	Compile(name, source string, deps SourceResolver) (Handle, error)
	// FreeVariables lists the variables the template reads without defining
	// them. With includeNested the full dotted paths are returned, otherwise
	// only their roots.
	FreeVariables(h Handle, includeNested bool) []string
	// Render executes the template against data.
	Render(h Handle, data map[string]any, policy UndefinedPolicy) (string, error)
}

// MissingTemplateError reports template references that could not be
// resolved. Its message keeps the "not found:" marker that text-based
// classifiers rely on.
type MissingTemplateError struct {
	Names []string
	Cause error
}

func (e *MissingTemplateError) Error() string {
	return "template not found: " + strings.Join(e.Names, ", ")
}

// Unwrap returns the engine error that triggered the lookup failure.
func (e *MissingTemplateError) Unwrap() error {
	return e.Cause
}

// UndefinedVariableError is returned by strict renders when a referenced
// variable has no value in the context.
type UndefinedVariableError struct {
	Template string
	Path     string
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("template %q: undefined variable %q", e.Template, e.Path)
}
