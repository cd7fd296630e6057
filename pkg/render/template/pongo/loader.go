package pongo

import (
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-leafrender/pkg/render/template"
)

// sourceLoader serves the template being compiled from memory and resolves
// every other name through deps. Every source it hands to pongo2 is
// instrumented.
type sourceLoader struct {
	name   string
	source string
	deps   template.SourceResolver
	served bool
}

func newSourceLoader(name, source string, deps template.SourceResolver) *sourceLoader {
	return &sourceLoader{name: name, source: source, deps: deps}
}

// Abs keeps template names flat; there is no directory hierarchy.
func (l *sourceLoader) Abs(_, name string) string {
	return strings.TrimSpace(name)
}

func (l *sourceLoader) Get(path string) (io.Reader, error) {
	if path == l.name && !l.served {
		l.served = true
		return strings.NewReader(l.source), nil
	}
	if l.deps != nil {
		if src, ok := l.deps.Source(path); ok {
			// committed sources already passed analysis
			src, _ = instrument(src)
			return strings.NewReader(src), nil
		}
	}
	return nil, fmt.Errorf("template %q not found", path)
}
