package pongo

import (
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/flosch/pongo2/v6"
	"github.com/microcosm-cc/bluemonday"
)

// FilterFunc is a template filter expressed over plain Go values.
type FilterFunc func(input any, param any) (any, error)

var (
	defaultFiltersOnce sync.Once

	sanitizePolicyOnce sync.Once
	sanitizePolicy     *bluemonday.Policy
)

func registerDefaultFilters() {
	defaultFiltersOnce.Do(func() {
		if !pongo2.FilterExists("trim") {
			_ = pongo2.RegisterFilter("trim", filterTrim)
		}
		if !pongo2.FilterExists("lowerfirst") {
			_ = pongo2.RegisterFilter("lowerfirst", filterLowerFirst)
		}
		if !pongo2.FilterExists("sanitize") {
			_ = pongo2.RegisterFilter("sanitize", filterSanitize)
		}
	})
}

// ErrFilterExists reports a filter name that pongo2 or the default filters
// already provide.
var ErrFilterExists = errors.New("filter already registered")

var (
	userFiltersMu sync.Mutex
	userFilters   = map[string]struct{}{}
)

// registerFilter installs fn under name. Names installed earlier through
// WithFilters are replaced; any other existing name is refused.
func registerFilter(name string, fn FilterFunc) error {
	if name == "" || fn == nil {
		return nil
	}
	userFiltersMu.Lock()
	defer userFiltersMu.Unlock()

	wrapped := adaptFilter(name, fn)
	if _, ok := userFilters[name]; ok {
		return pongo2.ReplaceFilter(name, wrapped)
	}
	if pongo2.FilterExists(name) {
		return ErrFilterExists
	}
	if err := pongo2.RegisterFilter(name, wrapped); err != nil {
		return err
	}
	userFilters[name] = struct{}{}
	return nil
}

func adaptFilter(name string, fn FilterFunc) pongo2.FilterFunction {
	return func(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
		var input, arg any
		if in != nil {
			input = in.Interface()
		}
		if param != nil {
			arg = param.Interface()
		}
		out, err := fn(input, arg)
		if err != nil {
			return nil, &pongo2.Error{Sender: "filter:" + name, OrigError: err}
		}
		return pongo2.AsValue(out), nil
	}
}

func filterTrim(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	if in.Len() <= 0 {
		return pongo2.AsValue(""), nil
	}
	return pongo2.AsValue(strings.TrimSpace(in.String())), nil
}

func filterLowerFirst(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	if in.Len() <= 0 {
		return pongo2.AsValue(""), nil
	}
	t := in.String()

	var (
		firstNonWhitespaceIndex int
		firstRune               rune
		firstRuneSize           int
	)

	for i, r := range t {
		if !strings.ContainsRune(" \t\n\r", r) {
			firstNonWhitespaceIndex = i
			firstRune = r
			firstRuneSize = utf8.RuneLen(r)
			break
		}
	}

	if firstRune == 0 {
		return pongo2.AsValue(t), nil
	}

	prefix := t[:firstNonWhitespaceIndex]
	loweredRune := strings.ToLower(string(firstRune))
	rest := t[firstNonWhitespaceIndex+firstRuneSize:]

	return pongo2.AsValue(prefix + loweredRune + rest), nil
}

// filterSanitize strips markup down to the user generated content policy and
// marks the result safe so autoescaping does not double encode it.
func filterSanitize(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	raw := strings.TrimSpace(in.String())
	if raw == "" {
		return pongo2.AsSafeValue(""), nil
	}
	return pongo2.AsSafeValue(sanitizer().Sanitize(raw)), nil
}

func sanitizer() *bluemonday.Policy {
	sanitizePolicyOnce.Do(func() {
		sanitizePolicy = bluemonday.UGCPolicy()
	})
	return sanitizePolicy
}
