// Package template defines the engine-agnostic seam between the template
// store and the engine that parses and executes template source. Engines
// report compile failures, expose the free variables of a compiled template
// and execute it under a configurable undefined-variable policy.
package template
