package pongo

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/flosch/pongo2/v6"
	"github.com/ohler55/ojg/jp"

	"github.com/goliatone/go-leafrender/pkg/render/template"
	"github.com/goliatone/go-leafrender/pkg/render/template/freevars"
)

// Every variable read in a compiled template goes through one of these
// functions, so undefined references are caught only when evaluated.
const (
	lookupRequired = "__leaf_lookup"
	lookupOptional = "__leaf_lookup_opt"
	scopeKey       = "__leaf_scope"
)

var instrumentLookups = freevars.Lookups{
	Required: lookupRequired,
	Optional: lookupOptional,
	Scope:    scopeKey,
}

var lookupGlobals = pongo2.Context{
	lookupRequired: func(ctx *pongo2.ExecutionContext, parts ...*pongo2.Value) (*pongo2.Value, error) {
		return lookup(ctx, parts, false)
	},
	lookupOptional: func(ctx *pongo2.ExecutionContext, parts ...*pongo2.Value) (*pongo2.Value, error) {
		return lookup(ctx, parts, true)
	},
}

// instrument returns source with its variable reads routed through the
// lookup functions. Sources the analyzer cannot read are returned as is so
// pongo2 reports the syntax error.
func instrument(source string) (string, error) {
	out, err := freevars.Instrument(source, instrumentLookups)
	if err != nil {
		return source, err
	}
	return out, nil
}

// renderScope carries the policy of a single Render call and remembers the
// first reference that failed to resolve.
type renderScope struct {
	policy  template.UndefinedPolicy
	missing string
}

func scopeOf(ctx *pongo2.ExecutionContext) *renderScope {
	for _, c := range []pongo2.Context{ctx.Private, ctx.Public} {
		if v, ok := c[scopeKey]; ok {
			if s, ok := unwrap(v).(*renderScope); ok {
				return s
			}
		}
	}
	return nil
}

// lookup resolves parts against the private then public context. A key
// holding null counts as defined. When optional is set only the last segment
// may be missing.
func lookup(ctx *pongo2.ExecutionContext, parts []*pongo2.Value, optional bool) (*pongo2.Value, error) {
	if len(parts) == 0 {
		return nil, errors.New("pongo: lookup without a variable name")
	}

	path := parts[0].String()
	val, ok := ctx.Private[path]
	if !ok {
		val, ok = ctx.Public[path]
	}
	if !ok {
		if optional && len(parts) == 1 {
			return pongo2.AsValue(nil), nil
		}
		return undefined(ctx, path)
	}
	if len(parts) == 1 {
		if pv, isValue := val.(*pongo2.Value); isValue {
			return pv, nil
		}
		return pongo2.AsValue(val), nil
	}

	current := unwrap(val)
	for idx, part := range parts[1:] {
		var x jp.Expr
		if part.IsInteger() {
			n := part.Integer()
			path += "." + strconv.Itoa(n)
			if n < 0 {
				return miss(ctx, path, optional && idx == len(parts)-2)
			}
			x = jp.N(n)
		} else {
			key := part.String()
			path += "." + key
			x = jp.C(key)
		}

		got := x.Get(current)
		if len(got) == 0 {
			return miss(ctx, path, optional && idx == len(parts)-2)
		}
		current = got[0]
	}
	return pongo2.AsValue(current), nil
}

func miss(ctx *pongo2.ExecutionContext, path string, tolerated bool) (*pongo2.Value, error) {
	if tolerated {
		return pongo2.AsValue(nil), nil
	}
	return undefined(ctx, path)
}

func undefined(ctx *pongo2.ExecutionContext, path string) (*pongo2.Value, error) {
	scope := scopeOf(ctx)
	if scope != nil && scope.policy != template.UndefinedStrict {
		return pongo2.AsValue(nil), nil
	}
	if scope != nil && scope.missing == "" {
		scope.missing = path
	}
	return nil, fmt.Errorf("undefined variable %q", path)
}

func unwrap(v any) any {
	if pv, ok := v.(*pongo2.Value); ok {
		return pv.Interface()
	}
	return v
}
