package compiler

import (
	"errors"
	"strings"

	"github.com/goliatone/go-leafrender/pkg/authorize"
	"github.com/goliatone/go-leafrender/pkg/model"
	"github.com/goliatone/go-leafrender/pkg/render/template"
)

// notFoundMarker precedes the comma separated template names in engine
// messages about unresolved references.
const notFoundMarker = "not found:"

// Classify maps a compile failure onto the error taxonomy. Structured engine
// errors win; the message heuristic only applies to engines that report
// unresolved templates as plain text.
func Classify(err error) *model.Error {
	if err == nil {
		return nil
	}

	var classified *model.Error
	if errors.As(err, &classified) {
		return classified
	}

	var missing *template.MissingTemplateError
	if errors.As(err, &missing) {
		return model.MissingDependencyError(missing.Error(), dedupe(missing.Names))
	}

	var unauthorized *authorize.UnauthorizedVariableError
	if errors.As(err, &unauthorized) {
		return model.CompileError("%s", unauthorized.Error())
	}

	msg := err.Error()
	if names, ok := dependencyNames(msg); ok {
		return model.MissingDependencyError(msg, names)
	}
	return model.CompileError("%s", msg)
}

// dependencyNames splits whatever follows the not-found marker into template
// names. The result may be empty or imprecise when an engine phrases its
// message differently.
func dependencyNames(msg string) ([]string, bool) {
	idx := strings.Index(msg, notFoundMarker)
	if idx < 0 {
		return nil, false
	}
	rest := firstLine(msg[idx+len(notFoundMarker):])

	var names []string
	for _, part := range strings.Split(rest, ",") {
		name := strings.Trim(part, " \t\"'`")
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return dedupe(names), true
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
