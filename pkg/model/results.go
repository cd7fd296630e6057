package model

import json "github.com/goccy/go-json"

// ResultType tags every result envelope.
type ResultType string

const (
	ResultSuccess ResultType = "Success"
	ResultError   ResultType = "Error"
)

// CompileResult is returned by the template compiler.
type CompileResult struct {
	Type  ResultType `json:"type"`
	Error *Error     `json:"error,omitempty"`
}

// CompileSucceeded returns the success envelope.
func CompileSucceeded() CompileResult {
	return CompileResult{Type: ResultSuccess}
}

// CompileFailed wraps err in an error envelope.
func CompileFailed(err *Error) CompileResult {
	return CompileResult{Type: ResultError, Error: err}
}

// OK reports whether the compile succeeded.
func (r CompileResult) OK() bool {
	return r.Type == ResultSuccess
}

// RenderResult is returned by the renderer. Result is only meaningful when
// Type is ResultSuccess; an empty render still serialises `"result": ""`.
type RenderResult struct {
	Type   ResultType
	Result string
	Error  *Error
}

// RenderSucceeded returns a success envelope holding the rendered text.
func RenderSucceeded(out string) RenderResult {
	return RenderResult{Type: ResultSuccess, Result: out}
}

// RenderFailed wraps err in an error envelope.
func RenderFailed(err *Error) RenderResult {
	return RenderResult{Type: ResultError, Error: err}
}

// OK reports whether the render succeeded.
func (r RenderResult) OK() bool {
	return r.Type == ResultSuccess
}

type renderSuccessWire struct {
	Type   ResultType `json:"type"`
	Result string     `json:"result"`
}

type renderErrorWire struct {
	Type  ResultType `json:"type"`
	Error *Error     `json:"error"`
}

// MarshalJSON emits `result` for successes and `error` for failures, never both.
func (r RenderResult) MarshalJSON() ([]byte, error) {
	if r.Type == ResultSuccess {
		return json.Marshal(renderSuccessWire{Type: r.Type, Result: r.Result})
	}
	return json.Marshal(renderErrorWire{Type: ResultError, Error: r.Error})
}

// UnmarshalJSON accepts either envelope shape.
func (r *RenderResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type   ResultType `json:"type"`
		Result string     `json:"result"`
		Error  *Error     `json:"error"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = RenderResult{Type: wire.Type, Result: wire.Result, Error: wire.Error}
	return nil
}

// RegisterResult is returned when a component schema is registered. Unlike the
// compile and render envelopes the failure message sits at the top level.
type RegisterResult struct {
	Type    ResultType `json:"type"`
	Message string     `json:"message,omitempty"`
}

// RegisterSucceeded returns the success envelope.
func RegisterSucceeded() RegisterResult {
	return RegisterResult{Type: ResultSuccess}
}

// RegisterFailed reports err's message.
func RegisterFailed(err error) RegisterResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
		if typed, ok := err.(*Error); ok {
			msg = typed.Message
		}
	}
	return RegisterResult{Type: ResultError, Message: msg}
}

// OK reports whether the registration succeeded.
func (r RegisterResult) OK() bool {
	return r.Type == ResultSuccess
}
