// Package components stores the JSON Schema documents that describe the data
// each named component exposes to templates. Schemas are checked for
// structural validity when they are registered; only well-formed documents
// ever become visible through Lookup.
package components
