package auditlog

import (
	"context"
	"fmt"
	"strings"

	"github.com/morezero/api-dispatcher/pkg/api"
)

const logPrefix = "auditlog:policy"

// ShouldCreate reports whether call gets an audit record: the session must
// carry a client code and the handler must want a record (by default every
// verb except get).
func ShouldCreate(call *api.Call, opts api.LogOptions) bool {
	if call == nil || call.Session == nil || call.Session.ClientCode() == "" {
		return false
	}
	if opts.CreateLog != nil {
		return *opts.CreateLog
	}
	return call.Request.Method != "get"
}

// Build assembles the redacted record for call. pristine is the request data
// exactly as received.
func Build(call *api.Call, opts api.LogOptions, pristine map[string]any) *Record {
	req := call.Request
	rec := &Record{
		ID:       req.LogID,
		Entity:   Entity,
		EntityID: strings.SplitN(req.Endpoint, "/", 2)[0],
		Type:     Type,
		Log: Entry{
			API: EntryAPI{Endpoint: req.Endpoint, HTTPMethod: req.Method},
			Response: EntryResponse{
				Code:    call.Response.Code,
				Headers: cloneHeaders(call.Response.Headers),
			},
			ExecutionTime: call.ExecutionTime,
		},
	}
	if call.Session != nil {
		rec.UserCreated = call.Session.UserID()
	}
	if !opts.SkipRequestHeaders {
		rec.Log.Request.Headers = RedactHeaders(req.Headers)
	}
	if !opts.SkipRequestData {
		if pristine == nil {
			pristine = map[string]any{}
		}
		rec.Log.Request.Data = OmitRecursive(pristine, opts.ExcludeRequestDataFields)
	}
	if !opts.SkipResponseBody {
		rec.Log.Response.Body = OmitRecursive(call.Response.Body, opts.ExcludeResponseBodyFields)
	}
	return rec
}

// Logger applies the policy and writes records to a Sink.
type Logger struct {
	sink Sink
}

// NewLogger creates a Logger. A nil sink discards records.
func NewLogger(sink Sink) *Logger {
	if sink == nil {
		sink = &NoOpSink{}
	}
	return &Logger{sink: sink}
}

// Save writes the audit record of call if the policy asks for one. It returns
// the record written, or nil when none was due.
func (l *Logger) Save(ctx context.Context, call *api.Call, opts api.LogOptions, pristine map[string]any) (*Record, error) {
	if !ShouldCreate(call, opts) {
		return nil, nil
	}
	rec := Build(call, opts, pristine)
	if err := l.sink.Add(ctx, call.Session.ClientCode(), rec); err != nil {
		return rec, fmt.Errorf("%s - failed to add record %s: %w", logPrefix, rec.ID, err)
	}
	return rec, nil
}
