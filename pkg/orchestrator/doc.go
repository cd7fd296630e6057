// Package orchestrator wires the component registry, template store,
// compiler pipeline, renderer and buffer codec into a single application
// context. Callers that prefer one entry point construct an Orchestrator and
// let it apply the built-in implementations for anything not injected.
package orchestrator
