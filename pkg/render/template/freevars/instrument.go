package freevars

import (
	"sort"
	"strconv"
	"strings"
)

// Lookups names the template functions Instrument routes variable reads
// through. Each is called as fn("root", "attr", 0, subscript...).
type Lookups struct {
	// Required must resolve every segment of the chain.
	Required string
	// Optional may leave the final segment unresolved. It is used for chains
	// piped into default or default_if_none and for firstof arguments.
	Optional string
	// Scope, when set, is forwarded explicitly to "include ... only" so the
	// included template still sees it.
	Scope string
}

// Instrument rewrites every variable chain read by source (names, attribute
// access, numeric indexes and subscripts) into a call to one of the lookup
// functions. Function and method calls, filter names and keyword argument
// keys are left alone. Line structure is preserved.
func Instrument(source string, fns Lookups) (string, error) {
	rw := &rewriter{fns: fns}
	a := newAnalyzer()
	a.rw = rw
	if err := a.walk(source); err != nil {
		return "", err
	}
	return splice(source, rw.edits), nil
}

type edit struct {
	start int
	end   int
	text  string
}

type rewriter struct {
	fns      Lookups
	body     string
	base     int
	optional bool
	edits    []edit
}

func (r *rewriter) enter(seg segment) {
	r.body = seg.body
	r.base = seg.offset
}

func (r *rewriter) expr(toks []token) {
	for _, e := range r.chains(toks) {
		e.start += r.base
		e.end += r.base
		r.edits = append(r.edits, e)
	}
}

// forwardScope adds scope=scope in front of a trailing "only" so the
// include keeps the render scope.
func (r *rewriter) forwardScope(args []token) {
	if r.fns.Scope == "" {
		return
	}
	for _, t := range args {
		if !t.is(tokenIdent, "only") {
			continue
		}
		at := r.base + t.start
		r.edits = append(r.edits, edit{start: at, end: at, text: r.fns.Scope + "=" + r.fns.Scope + " "})
	}
}

// chains returns one edit per variable chain in toks, with offsets relative
// to the current segment body.
func (r *rewriter) chains(toks []token) []edit {
	var out []edit
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

		args := []string{strconv.Quote(t.val)}
		m := k
	parts:
		for {
			switch {
			case m+2 < len(toks) && toks[m+1].is(tokenSymbol, ".") && toks[m+2].kind == tokenIdent:
				args = append(args, strconv.Quote(toks[m+2].val))
				m += 2
			case m+2 < len(toks) && toks[m+1].is(tokenSymbol, ".") && toks[m+2].kind == tokenNumber:
				args = append(args, toks[m+2].val)
				m += 2
			case m+1 < len(toks) && toks[m+1].is(tokenSymbol, "["):
				end := closing(toks, m+1)
				if end <= m+2 {
					break parts
				}
				args = append(args, r.span(toks[m+2:end]))
				m = end
			default:
				break parts
			}
		}

		// calls keep pongo2's own resolution; their arguments are visited
		// on later iterations
		if m+1 < len(toks) && toks[m+1].is(tokenSymbol, "(") {
			continue
		}

		fn := r.fns.Required
		if r.optional || defaulted(toks[m+1:]) {
			fn = r.fns.Optional
		}
		out = append(out, edit{
			start: t.start,
			end:   toks[m].end,
			text:  fn + "(" + strings.Join(args, ", ") + ")",
		})
		k = m
	}
	return out
}

// span returns the rewritten text of toks.
func (r *rewriter) span(toks []token) string {
	from, to := toks[0].start, toks[len(toks)-1].end
	inner := r.chains(toks)
	for i := range inner {
		inner[i].start -= from
		inner[i].end -= from
	}
	return splice(r.body[from:to], inner)
}

func defaulted(rest []token) bool {
	if len(rest) < 2 || !rest[0].is(tokenSymbol, "|") {
		return false
	}
	return rest[1].is(tokenIdent, "default") || rest[1].is(tokenIdent, "default_if_none")
}

// closing returns the index of the bracket matching toks[open], or -1.
func closing(toks []token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		switch {
		case toks[i].is(tokenSymbol, "["):
			depth++
		case toks[i].is(tokenSymbol, "]"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func splice(s string, edits []edit) string {
	if len(edits) == 0 {
		return s
	}
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var b strings.Builder
	b.Grow(len(s) + 32*len(edits))
	last := 0
	for _, e := range edits {
		if e.start < last {
			continue
		}
		b.WriteString(s[last:e.start])
		b.WriteString(e.text)
		last = e.end
	}
	b.WriteString(s[last:])
	return b.String()
}
