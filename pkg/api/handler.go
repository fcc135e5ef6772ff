// Package api defines the contract every endpoint handler satisfies.
//
// A handler is registered for a resource path and verb (see package fetcher)
// and receives a fresh *Call per dispatch. Process is the only required
// capability; validation, schemas and logging preferences are optional
// interfaces the dispatcher detects at runtime.
package api

import (
	"context"

	"github.com/morezero/api-dispatcher/pkg/schema"
)

// Handler implements the business logic of one endpoint and verb.
type Handler interface {
	Process(ctx context.Context, call *Call) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, call *Call) error

// Process calls f.
func (f HandlerFunc) Process(ctx context.Context, call *Call) error { return f(ctx, call) }

// Validator is implemented by handlers with their own request validation. It
// runs after the schema, if any.
type Validator interface {
	Validate(ctx context.Context, call *Call) error
}

// Structured is implemented by handlers that declare a schema for the request
// data. Use schema.Sequence to require several schemas.
type Structured interface {
	Struct() schema.Schema
}

// Logged is implemented by handlers that tune their audit log record.
type Logged interface {
	LogOptions() LogOptions
}

// LogOptions controls the audit record of a handler. The zero value logs
// headers, data and body, and creates a record for every verb except get.
type LogOptions struct {
	// CreateLog forces record creation on or off. Nil means every verb except get.
	CreateLog *bool

	SkipRequestHeaders bool
	SkipRequestData    bool
	SkipResponseBody   bool

	// Keys removed, at any object depth, from the logged request data and response body.
	ExcludeRequestDataFields  []string
	ExcludeResponseBodyFields []string
}

// Bool returns a pointer to b, for LogOptions.CreateLog.
func Bool(b bool) *bool { return &b }

// OptionsOf returns the log options of h, or the zero value.
func OptionsOf(h Handler) LogOptions {
	if l, ok := h.(Logged); ok {
		return l.LogOptions()
	}
	return LogOptions{}
}
