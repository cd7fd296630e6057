// Package bundle loads manifests that declare components, templates and
// sample render contexts, so a whole set can be registered and compiled in
// one step. Manifests are JSON or YAML files named *.leaf.json, *.leaf.yaml
// or *.leaf.yml; schemas and template sources may live inline or in files
// referenced relative to the manifest.
package bundle
