package prompt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Filler prompts for missing context values.
type Filler struct {
	driver  Driver
	schemas []map[string]any
}

// NewFiller returns a Filler that types its prompts from schemas.
func NewFiller(driver Driver, schemas ...map[string]any) *Filler {
	return &Filler{driver: driver, schemas: schemas}
}

// Fill prompts for every path absent from data and stores the answers in
// place, creating intermediate objects as needed. Paths already present are
// left untouched.
func (f *Filler) Fill(ctx context.Context, paths []string, data map[string]any) error {
	for _, path := range paths {
		if lookup(data, path) {
			continue
		}
		value, err := f.ask(ctx, path, f.property(path))
		if err != nil {
			return fmt.Errorf("prompt: %s: %w", path, err)
		}
		if err := assign(data, path, value); err != nil {
			return err
		}
	}
	return nil
}

func (f *Filler) ask(ctx context.Context, path string, prop map[string]any) (any, error) {
	help, _ := prop["description"].(string)

	if options := enumOptions(prop); len(options) > 0 {
		idx, err := f.driver.Select(ctx, SelectConfig{Message: path, Options: options, Help: help})
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(options) {
			return nil, fmt.Errorf("selection %d out of range", idx)
		}
		return options[idx], nil
	}

	switch schemaType(prop) {
	case "boolean":
		return f.driver.Confirm(ctx, ConfirmConfig{Message: path, Help: help})
	case "integer":
		raw, err := f.driver.Input(ctx, InputConfig{Message: path, Help: help, Validator: validInteger})
		if err != nil {
			return nil, err
		}
		return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	case "number":
		raw, err := f.driver.Input(ctx, InputConfig{Message: path, Help: help, Validator: validNumber})
		if err != nil {
			return nil, err
		}
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	default:
		return f.driver.Input(ctx, InputConfig{Message: path, Help: help})
	}
}

// property returns the schema node declaring path in the first schema that
// declares it, or an empty node.
func (f *Filler) property(path string) map[string]any {
	segments := strings.Split(path, ".")
	for _, schema := range f.schemas {
		node := schema
		found := true
		for _, segment := range segments {
			props, ok := node["properties"].(map[string]any)
			if !ok {
				found = false
				break
			}
			next, ok := props[segment].(map[string]any)
			if !ok {
				found = false
				break
			}
			node = next
		}
		if found {
			return node
		}
	}
	return map[string]any{}
}

func schemaType(prop map[string]any) string {
	switch t := prop["type"].(type) {
	case string:
		return t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s != "null" {
				return s
			}
		}
	}
	return ""
}

func enumOptions(prop map[string]any) []string {
	values, ok := prop["enum"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		out = append(out, s)
	}
	return out
}

func validInteger(s string) error {
	if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
		return fmt.Errorf("%q is not an integer", s)
	}
	return nil
}

func validNumber(s string) error {
	if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
		return fmt.Errorf("%q is not a number", s)
	}
	return nil
}

func lookup(data map[string]any, path string) bool {
	var node any = data
	for _, segment := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return false
		}
		node, ok = m[segment]
		if !ok {
			return false
		}
	}
	return true
}

func assign(data map[string]any, path string, value any) error {
	segments := strings.Split(path, ".")
	node := data
	for _, segment := range segments[:len(segments)-1] {
		next, ok := node[segment]
		if !ok {
			child := map[string]any{}
			node[segment] = child
			node = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("prompt: cannot set %s: %s is not an object", path, segment)
		}
		node = child
	}
	node[segments[len(segments)-1]] = value
	return nil
}
