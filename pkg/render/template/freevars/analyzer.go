// Package freevars statically computes the free variables of a template: the
// dotted paths it reads from the render context without binding them itself
// through for, with, set, macro or import tags.
package freevars

import (
	"fmt"
	"sort"
	"strings"
)

// Analyze returns the sorted, de-duplicated dotted paths source reads from
// its context. Attribute chains are kept whole ("user.address.city") up to
// the first numeric index or subscript.
func Analyze(source string) ([]string, error) {
	a := newAnalyzer()
	if err := a.walk(source); err != nil {
		return nil, err
	}
	return a.paths(), nil
}

// Roots reduces dotted paths to their sorted, unique first segments.
func Roots(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, path := range paths {
		root, _, _ := strings.Cut(path, ".")
		if root == "" {
			continue
		}
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		out = append(out, root)
	}
	sort.Strings(out)
	return out
}

type scope struct {
	kind  string
	names map[string]struct{}
}

type analyzer struct {
	scopes []*scope
	found  map[string]struct{}
	rw     *rewriter
}

func newAnalyzer() *analyzer {
	return &analyzer{
		scopes: []*scope{{names: make(map[string]struct{})}},
		found:  make(map[string]struct{}),
	}
}

func (a *analyzer) walk(source string) error {
	segments, err := splitSegments(source)
	if err != nil {
		return err
	}
	for _, seg := range segments {
		toks, err := tokenize(seg.body)
		if err != nil {
			return fmt.Errorf("freevars: line %d: %w", seg.line, err)
		}
		if a.rw != nil {
			a.rw.enter(seg)
		}
		if seg.kind == segmentVariable {
			a.expr(toks)
			continue
		}
		a.tag(toks)
	}
	return nil
}

func (a *analyzer) push(kind string, names ...string) {
	s := &scope{kind: kind, names: make(map[string]struct{}, len(names))}
	for _, name := range names {
		s.names[name] = struct{}{}
	}
	a.scopes = append(a.scopes, s)
}

func (a *analyzer) pop(kind string) {
	if len(a.scopes) <= 1 {
		return
	}
	if a.scopes[len(a.scopes)-1].kind != kind {
		return
	}
	a.scopes = a.scopes[:len(a.scopes)-1]
}

func (a *analyzer) bind(name string) {
	a.scopes[len(a.scopes)-1].names[name] = struct{}{}
}

func (a *analyzer) bound(name string) bool {
	for idx := len(a.scopes) - 1; idx >= 0; idx-- {
		if _, ok := a.scopes[idx].names[name]; ok {
			return true
		}
	}
	return false
}

func (a *analyzer) paths() []string {
	out := make([]string, 0, len(a.found))
	for path := range a.found {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// expr records every unbound variable path in toks. Identifiers following a
// dot or a pipe are attributes and filter names; identifiers followed by a
// single '=' are keyword argument keys.
func (a *analyzer) expr(toks []token) {
	if a.rw != nil {
		a.rw.expr(toks)
	}
	for k := 0; k < len(toks); k++ {
		t := toks[k]
		if t.kind != tokenIdent {
			continue
		}
		if k > 0 && (toks[k-1].is(tokenSymbol, ".") || toks[k-1].is(tokenSymbol, "|")) {
			continue
		}
		if k+1 < len(toks) && toks[k+1].is(tokenSymbol, "=") {
			continue
		}

		path := t.val
		m := k
		for m+2 < len(toks) && toks[m+1].is(tokenSymbol, ".") && toks[m+2].kind == tokenIdent {
			path += "." + toks[m+2].val
			m += 2
		}
		k = m

		if a.bound(t.val) {
			continue
		}
		a.found[path] = struct{}{}
	}
}

func (a *analyzer) tag(toks []token) {
	if len(toks) == 0 || toks[0].kind != tokenIdent {
		a.expr(toks)
		return
	}
	args := toks[1:]

	switch toks[0].val {
	case "for":
		a.forTag(args)
	case "endfor":
		a.pop("for")
	case "set":
		if len(args) >= 2 && args[0].kind == tokenIdent && args[1].is(tokenSymbol, "=") {
			a.expr(args[2:])
			a.bind(args[0].val)
			return
		}
		a.expr(args)
	case "with":
		a.withTag(args)
	case "endwith":
		a.pop("with")
	case "macro":
		a.macroTag(args)
	case "endmacro":
		a.pop("macro")
	case "import":
		a.importTag(args)
	case "include":
		if a.rw != nil {
			a.rw.forwardScope(args)
		}
		a.expr(dropIdents(args, "with", "only", "if_exists"))
	case "firstof":
		if a.rw != nil {
			a.rw.optional = true
			defer func() { a.rw.optional = false }()
		}
		a.expr(args)
	case "filter":
		if len(args) > 0 {
			a.expr(args[1:])
		}
	case "cycle":
		if idx := indexOf(args, tokenKeyword, "as"); idx >= 0 {
			a.expr(args[:idx])
			if idx+1 < len(args) && args[idx+1].kind == tokenIdent {
				a.bind(args[idx+1].val)
			}
			return
		}
		a.expr(args)
	case "block", "endblock", "autoescape", "endautoescape", "now", "lorem",
		"templatetag", "ssi", "spaceless", "endspaceless", "else", "empty",
		"endif", "endfilter", "endifchanged", "endifequal", "endifnotequal":
	default:
		a.expr(args)
	}
}

func (a *analyzer) forTag(args []token) {
	var names []string
	i := 0
	if i < len(args) && args[i].kind == tokenIdent {
		names = append(names, args[i].val)
		i++
	}
	if i+1 < len(args) && args[i].is(tokenSymbol, ",") && args[i+1].kind == tokenIdent {
		names = append(names, args[i+1].val)
		i += 2
	}
	if i < len(args) && args[i].is(tokenKeyword, "in") {
		i++
	}

	rest := trimTrailingIdent(args[i:], "sorted")
	rest = trimTrailingIdent(rest, "reversed")
	a.expr(rest)
	a.push("for", append(names, "forloop")...)
}

func (a *analyzer) withTag(args []token) {
	var names []string
	if indexOf(args, tokenKeyword, "as") >= 0 {
		start := 0
		for i := 0; i < len(args); i++ {
			if !args[i].is(tokenKeyword, "as") {
				continue
			}
			a.expr(args[start:i])
			if i+1 < len(args) && args[i+1].kind == tokenIdent {
				names = append(names, args[i+1].val)
			}
			i++
			start = i + 1
		}
	} else {
		a.expr(args)
		for i := 0; i+1 < len(args); i++ {
			if args[i].kind != tokenIdent || !args[i+1].is(tokenSymbol, "=") {
				continue
			}
			if i > 0 && args[i-1].is(tokenSymbol, ".") {
				continue
			}
			names = append(names, args[i].val)
		}
	}
	a.push("with", names...)
}

func (a *analyzer) macroTag(args []token) {
	if len(args) == 0 || args[0].kind != tokenIdent {
		a.push("macro")
		return
	}
	a.bind(args[0].val)

	open := indexOf(args, tokenSymbol, "(")
	if open < 0 {
		a.push("macro")
		return
	}
	depth := 0
	closeIdx := len(args)
	for i := open; i < len(args); i++ {
		switch {
		case args[i].is(tokenSymbol, "("):
			depth++
		case args[i].is(tokenSymbol, ")"):
			depth--
		}
		if depth == 0 {
			closeIdx = i
			break
		}
	}

	var params []string
	for _, part := range splitTopLevel(args[open+1:closeIdx], ",") {
		if len(part) == 0 || part[0].kind != tokenIdent {
			continue
		}
		params = append(params, part[0].val)
		if len(part) > 2 && part[1].is(tokenSymbol, "=") {
			a.expr(part[2:])
		}
	}
	a.push("macro", params...)
}

func (a *analyzer) importTag(args []token) {
	if len(args) > 0 && args[0].kind == tokenString {
		args = args[1:]
	}
	for _, part := range splitTopLevel(args, ",") {
		if len(part) == 0 {
			continue
		}
		last := part[len(part)-1]
		if last.kind == tokenIdent {
			a.bind(last.val)
		}
	}
}

func indexOf(toks []token, kind tokenKind, val string) int {
	for idx, t := range toks {
		if t.is(kind, val) {
			return idx
		}
	}
	return -1
}

func trimTrailingIdent(toks []token, name string) []token {
	n := len(toks)
	if n < 2 || !toks[n-1].is(tokenIdent, name) {
		return toks
	}
	prev := toks[n-2]
	if prev.is(tokenSymbol, ".") || prev.is(tokenSymbol, "|") || prev.is(tokenSymbol, ":") {
		return toks
	}
	return toks[:n-1]
}

func dropIdents(toks []token, names ...string) []token {
	out := make([]token, 0, len(toks))
	for _, t := range toks {
		skip := false
		if t.kind == tokenIdent {
			for _, name := range names {
				if t.val == name {
					skip = true
					break
				}
			}
		}
		if !skip {
			out = append(out, t)
		}
	}
	return out
}

// splitTopLevel splits toks on sep outside of parentheses and brackets.
func splitTopLevel(toks []token, sep string) [][]token {
	var (
		out   [][]token
		depth int
		start int
	)
	for idx, t := range toks {
		switch {
		case t.is(tokenSymbol, "("), t.is(tokenSymbol, "["):
			depth++
		case t.is(tokenSymbol, ")"), t.is(tokenSymbol, "]"):
			depth--
		case depth == 0 && t.is(tokenSymbol, sep):
			out = append(out, toks[start:idx])
			start = idx + 1
		}
	}
	return append(out, toks[start:])
}
