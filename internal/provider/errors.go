package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies an upstream failure.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport" // network failure or timeout
	KindStatus    ErrorKind = "status"    // non-2xx HTTP status
	KindDecode    ErrorKind = "decode"    // malformed or unexpected response body
	KindBlocked   ErrorKind = "blocked"   // provider refused the prompt
	KindEmpty     ErrorKind = "empty"     // well-formed response without content
)

// Error is returned by every upstream call in this package.
type Error struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of an upstream error, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// outcomeOf labels an upstream call for metrics: "ok", the error kind, or
// "error" for failures outside this package (context cancellation, marshal).
func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

const maxErrorBody = 2048

// statusError builds a KindStatus error, extracting a human-readable message
// from common JSON error envelopes ({"error": {"message"}} or {"error": "..."}).
func statusError(providerName string, status int, body []byte) *Error {
	return &Error{
		Provider:   providerName,
		Kind:       KindStatus,
		StatusCode: status,
		Message:    errorMessage(body),
	}
}

func errorMessage(body []byte) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}
	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &flat) == nil && flat.Error != "" {
		return flat.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}
	if msg == "" {
		msg = "empty response body"
	}
	return msg
}
