// Package dispatcher runs a request descriptor through the handler lifecycle
// and assembles the response.
package dispatcher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/morezero/api-dispatcher/pkg/apierror"
)

// Request is the inbound request descriptor.
type Request struct {
	Endpoint           string            `json:"endpoint"`
	Method             string            `json:"method,omitempty"`
	Data               map[string]any    `json:"data,omitempty"`
	RawData            string            `json:"rawData,omitempty"`
	Headers            map[string]string `json:"headers,omitempty"`
	Cookies            map[string]string `json:"cookies,omitempty"`
	AuthenticationData map[string]any    `json:"authenticationData,omitempty"`
}

// Response is the outbound response descriptor.
type Response struct {
	Code    int               `json:"code"`
	Headers map[string]string `json:"headers"`
	Cookies map[string]string `json:"cookies"`
	Body    any               `json:"body,omitempty"`
}

// Reply is the JSON envelope sent back over COMMS: the response plus the error
// that produced it, if any.
type Reply struct {
	Response
	Error *apierror.Error `json:"error,omitempty"`
}

// NewReply builds a Reply from the outcome of Dispatch. A descriptor error has
// no response; its reply carries status 400.
func NewReply(resp *Response, err error) *Reply {
	r := &Reply{}
	if resp != nil {
		r.Response = *resp
	}
	if err != nil {
		r.Error = apierror.Wrap(err, apierror.CodeProcessingFailed)
	}
	if resp == nil {
		r.Code = 400
		if r.Error != nil && apierror.IsErrorStatus(r.Error.StatusCode) {
			r.Code = r.Error.StatusCode
		}
		if r.Error != nil {
			r.Body = map[string]any{"message": r.Error.Message}
		}
	}
	return r
}

// Validate checks the descriptor invariants that the Go types cannot express.
func (r *Request) Validate() error {
	if r == nil {
		return apierror.InvalidDescriptor(apierror.ReasonInvalidRequestData, "Request must be an object")
	}
	if strings.TrimSpace(r.Endpoint) == "" {
		return apierror.InvalidDescriptor(apierror.ReasonInvalidEndpoint, "Endpoint must be a non-empty string")
	}
	return nil
}

// descriptorFields maps each optional descriptor key to the JSON kind it must
// have and the reason reported otherwise.
var descriptorFields = []struct {
	key    string
	kind   byte
	reason string
}{
	{"method", '"', apierror.ReasonInvalidMethod},
	{"data", '{', apierror.ReasonInvalidRequestData},
	{"rawData", '"', apierror.ReasonInvalidRequestData},
	{"headers", '{', apierror.ReasonInvalidHeaders},
	{"cookies", '{', apierror.ReasonInvalidCookies},
	{"authenticationData", '{', apierror.ReasonInvalidAuthenticationData},
}

// DecodeRequest decodes a JSON request descriptor. The shape of every field is
// checked before decoding, so a malformed descriptor always yields an
// InvalidRequestDescriptor error with the offending field as reason.
func DecodeRequest(raw []byte) (*Request, error) {
	var fields map[string]json.RawMessage
	if kindOf(raw) != '{' || json.Unmarshal(raw, &fields) != nil {
		return nil, apierror.InvalidDescriptor(apierror.ReasonInvalidRequestData, "Request must be an object")
	}

	if kindOf(fields["endpoint"]) != '"' {
		return nil, apierror.InvalidDescriptor(apierror.ReasonInvalidEndpoint, "Endpoint must be a non-empty string")
	}
	for _, f := range descriptorFields {
		v, ok := fields[f.key]
		if !ok || kindOf(v) == 'n' {
			continue
		}
		if kindOf(v) != f.kind {
			return nil, apierror.InvalidDescriptor(f.reason, fmt.Sprintf("%s has an invalid type", f.key))
		}
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, &apierror.Error{
			Code:    apierror.CodeInvalidRequestDescriptor,
			Reason:  reasonFor(err),
			Message: err.Error(),
			Cause:   err,
		}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// reasonFor maps a decode error on a nested value to the descriptor field.
func reasonFor(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		switch {
		case strings.HasPrefix(typeErr.Field, "headers"):
			return apierror.ReasonInvalidHeaders
		case strings.HasPrefix(typeErr.Field, "cookies"):
			return apierror.ReasonInvalidCookies
		}
	}
	return apierror.ReasonInvalidRequestData
}

// kindOf returns the first significant byte of a JSON value: '{', '[', '"',
// 'n' for null, 't'/'f' for booleans, a digit or '-' for numbers, 0 if empty.
func kindOf(raw json.RawMessage) byte {
	raw = bytes.TrimLeft(raw, " \t\r\n")
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}
