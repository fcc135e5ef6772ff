package api

import (
	"github.com/morezero/api-dispatcher/pkg/session"
)

// Request is the handler's view of the inbound request.
type Request struct {
	Endpoint       string
	Method         string
	Data           map[string]any
	RawData        string
	PathParameters []string
	Headers        map[string]string
	Cookies        map[string]string
	LogID          string
}

// Call is the per-dispatch state shared between the dispatcher and a handler.
// It is never shared across dispatches.
type Call struct {
	Request  Request
	Response Response
	Session  session.Session
	// Client is the active client resolved from the configured identifiers, if any.
	Client map[string]any
	// ExecutionTime is the elapsed time in milliseconds up to the end of process.
	ExecutionTime float64
}

// NewCall returns a Call with initialized response maps.
func NewCall() *Call {
	return &Call{Response: newResponse()}
}

// PathParameter returns the i-th path parameter, or "" when absent.
func (c *Call) PathParameter(i int) string {
	if i < 0 || i >= len(c.Request.PathParameters) {
		return ""
	}
	return c.Request.PathParameters[i]
}
