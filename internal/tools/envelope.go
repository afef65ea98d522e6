// Package tools implements the tool adapter layer: five stateless,
// user-scoped operations over task storage, each returning a uniform
// result envelope that an automated caller can branch on without ever
// inspecting anything beyond the success flag and the error code.
package tools

import "encoding/json"

// Error codes surfaced by tool adapters. TASK_NOT_FOUND deliberately
// covers both "no such task" and "task owned by someone else" so a
// caller cannot probe for other users' task ids.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeTaskNotFound  = "TASK_NOT_FOUND"
	CodeAuthorization = "AUTHORIZATION_ERROR"
	CodeDatabase      = "DATABASE_ERROR"
)

// ToolError is the failure half of an envelope.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the fixed result shape of every tool adapter operation:
// {"success": true, ...payload} or {"success": false, "error": {...}}.
type Envelope struct {
	Success bool
	Payload map[string]any
	Err     *ToolError
}

// OK builds a success envelope with the given payload fields.
func OK(payload map[string]any) Envelope {
	return Envelope{Success: true, Payload: payload}
}

// Fail builds a failure envelope.
func Fail(code, message string) Envelope {
	return Envelope{Success: false, Err: &ToolError{Code: code, Message: message}}
}

// AsMap flattens the envelope into its wire shape.
func (e Envelope) AsMap() map[string]any {
	out := map[string]any{"success": e.Success}
	if e.Success {
		for k, v := range e.Payload {
			out[k] = v
		}
		return out
	}
	out["error"] = map[string]any{"code": e.Err.Code, "message": e.Err.Message}
	return out
}

// MarshalJSON renders the flattened wire shape.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.AsMap())
}
