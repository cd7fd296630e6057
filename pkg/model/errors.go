package model

import "fmt"

// ErrorKind enumerates the failure categories reported to hosts.
type ErrorKind string

const (
	// KindParseError covers malformed envelopes, unreadable names or contexts
	// and unknown template names at render time.
	KindParseError ErrorKind = "ParseError"
	// KindSchemaValidation is reported when a component schema is rejected.
	KindSchemaValidation ErrorKind = "SchemaValidationError"
	// KindMissingDependency is reported when a template references another
	// named template that has not been compiled.
	KindMissingDependency ErrorKind = "MissingDependency"
	// KindCompileError covers every other compile failure, including
	// variables not declared by the template's components.
	KindCompileError ErrorKind = "CompileError"
	// KindRenderError is reported when execution fails.
	KindRenderError ErrorKind = "RenderError"
)

// Error is the structured error carried inside result envelopes.
type Error struct {
	Kind                ErrorKind `json:"error_type"`
	Message             string    `json:"message"`
	MissingDependencies []string  `json:"missing_dependencies,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}

// Is matches errors of the same kind so callers can use errors.Is with a
// template value such as &Error{Kind: KindParseError}.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// NewError builds an Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ParseError is shorthand for NewError(KindParseError, ...).
func ParseError(format string, args ...any) *Error {
	return NewError(KindParseError, format, args...)
}

// CompileError is shorthand for NewError(KindCompileError, ...).
func CompileError(format string, args ...any) *Error {
	return NewError(KindCompileError, format, args...)
}

// RenderError is shorthand for NewError(KindRenderError, ...).
func RenderError(format string, args ...any) *Error {
	return NewError(KindRenderError, format, args...)
}

// SchemaValidationError is shorthand for NewError(KindSchemaValidation, ...).
func SchemaValidationError(format string, args ...any) *Error {
	return NewError(KindSchemaValidation, format, args...)
}

// MissingDependencyError reports unresolved template names.
func MissingDependencyError(message string, names []string) *Error {
	return &Error{
		Kind:                KindMissingDependency,
		Message:             message,
		MissingDependencies: append([]string(nil), names...),
	}
}
