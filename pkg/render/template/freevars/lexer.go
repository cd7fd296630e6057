package freevars

import (
	"fmt"
	"strings"
	"unicode"
)

type segmentKind int

const (
	segmentVariable segmentKind = iota
	segmentTag
)

// segment is the inside of a {{ ... }} or {% ... %} block with whitespace
// control markers removed.
type segment struct {
	kind   segmentKind
	body   string
	line   int
	offset int // of body within the source
}

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenKeyword
	tokenNumber
	tokenString
	tokenSymbol
)

// token spans expr[start:end]; for strings val holds the unquoted content.
type token struct {
	kind  tokenKind
	val   string
	start int
	end   int
}

func (t token) is(kind tokenKind, val string) bool {
	return t.kind == kind && t.val == val
}

var keywords = map[string]struct{}{
	"in": {}, "and": {}, "or": {}, "not": {},
	"true": {}, "false": {}, "as": {}, "export": {},
}

// symbols is ordered longest first so multi-character operators win.
var symbols = []string{
	"==", ">=", "<=", "&&", "||", "!=", "<>",
	"(", ")", "+", "-", "*", "<", ">", "/", "^", ",", ".", "!", "|", ":", "=", "%", "[", "]",
}

// splitSegments extracts the expression and tag blocks of source. Comments and
// verbatim regions are dropped.
func splitSegments(source string) ([]segment, error) {
	var out []segment
	pos := 0
	line := 1
	for pos < len(source) {
		idx := indexOpen(source[pos:])
		if idx < 0 {
			break
		}
		line += strings.Count(source[pos:pos+idx], "\n")
		pos += idx
		opener := source[pos : pos+2]

		if opener == "{#" {
			end := strings.Index(source[pos+2:], "#}")
			if end < 0 {
				return nil, fmt.Errorf("freevars: line %d: comment not closed", line)
			}
			line += strings.Count(source[pos:pos+2+end], "\n")
			pos += 2 + end + 2
			continue
		}

		closer := "}}"
		kind := segmentVariable
		if opener == "{%" {
			closer = "%}"
			kind = segmentTag
		}
		end, err := indexClose(source, pos+2, closer)
		if err != nil {
			return nil, fmt.Errorf("freevars: line %d: %w", line, err)
		}
		raw := source[pos+2 : end]
		body := trimMarkers(raw)
		offset := pos + 2 + leadingMarkers(raw)
		startLine := line
		line += strings.Count(source[pos:end], "\n")
		pos = end + len(closer)

		if kind == segmentTag {
			switch tagName(body) {
			case "verbatim":
				next, err := skipUntilTag(source, pos, "endverbatim")
				if err != nil {
					return nil, fmt.Errorf("freevars: line %d: %w", startLine, err)
				}
				line += strings.Count(source[pos:next], "\n")
				pos = next
				continue
			case "comment":
				next, err := skipUntilTag(source, pos, "endcomment")
				if err != nil {
					return nil, fmt.Errorf("freevars: line %d: %w", startLine, err)
				}
				line += strings.Count(source[pos:next], "\n")
				pos = next
				continue
			}
		}
		out = append(out, segment{kind: kind, body: body, line: startLine, offset: offset})
	}
	return out, nil
}

func indexOpen(s string) int {
	for i := 0; i+1 < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		switch s[i+1] {
		case '{', '%', '#':
			return i
		}
	}
	return -1
}

// indexClose finds closer starting at from, ignoring closers inside quoted
// string literals.
func indexClose(source string, from int, closer string) (int, error) {
	var quote byte
	for i := from; i < len(source); i++ {
		c := source[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			continue
		}
		if strings.HasPrefix(source[i:], closer) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%q not closed", closer)
}

// skipUntilTag returns the offset just past the first {% name %} at or after
// from.
func skipUntilTag(source string, from int, name string) (int, error) {
	pos := from
	for pos < len(source) {
		idx := strings.Index(source[pos:], "{%")
		if idx < 0 {
			break
		}
		start := pos + idx
		end, err := indexClose(source, start+2, "%}")
		if err != nil {
			return -1, err
		}
		if tagName(trimMarkers(source[start+2:end])) == name {
			return end + 2, nil
		}
		pos = end + 2
	}
	return -1, fmt.Errorf("%q tag not found", name)
}

func trimMarkers(body string) string {
	body = strings.TrimPrefix(body, "-")
	body = strings.TrimSuffix(body, "-")
	return strings.TrimSpace(body)
}

// leadingMarkers is the length trimMarkers removes from the front of raw.
func leadingMarkers(raw string) int {
	rest := strings.TrimLeftFunc(strings.TrimPrefix(raw, "-"), unicode.IsSpace)
	return len(raw) - len(rest)
}

func tagName(body string) string {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// tokenize splits an expression into identifiers, keywords, literals and
// operator symbols.
func tokenize(expr string) ([]token, error) {
	var out []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isIdentStart(c):
			j := i + 1
			for j < len(expr) && isIdentPart(expr[j]) {
				j++
			}
			word := expr[i:j]
			kind := tokenIdent
			if _, ok := keywords[word]; ok {
				kind = tokenKeyword
			}
			out = append(out, token{kind: kind, val: word, start: i, end: j})
			i = j
		case c >= '0' && c <= '9':
			j := i + 1
			for j < len(expr) && expr[j] >= '0' && expr[j] <= '9' {
				j++
			}
			out = append(out, token{kind: tokenNumber, val: expr[i:j], start: i, end: j})
			i = j
		case c == '"' || c == '\'':
			j := i + 1
			for j < len(expr) && expr[j] != c {
				if expr[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(expr) {
				return nil, fmt.Errorf("unterminated string literal in %q", expr)
			}
			out = append(out, token{kind: tokenString, val: expr[i+1 : j], start: i, end: j + 1})
			i = j + 1
		default:
			matched := ""
			for _, sym := range symbols {
				if strings.HasPrefix(expr[i:], sym) {
					matched = sym
					break
				}
			}
			if matched == "" {
				return nil, fmt.Errorf("unexpected character %q in %q", c, expr)
			}
			out = append(out, token{kind: tokenSymbol, val: matched, start: i, end: i + len(matched)})
			i += len(matched)
		}
	}
	return out, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
