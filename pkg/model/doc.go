// Package model defines the values that cross the renderer boundary: the
// template definitions submitted for compilation, the error taxonomy reported
// back to hosts, and the tagged result envelopes (`{"type": "Success"}` /
// `{"type": "Error", ...}`) produced by every operation. Field names and JSON
// tags are part of the wire contract consumed by embedding hosts, so changes
// here are breaking changes.
package model
