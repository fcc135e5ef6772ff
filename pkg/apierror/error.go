// Package apierror defines the coded errors that drive control flow through the dispatch pipeline.
package apierror

import (
	"errors"
	"fmt"
	"strings"
)

// Code is the taxonomy symbol of an Error.
type Code string

// Taxonomy codes.
const (
	CodeInvalidRequestDescriptor Code = "INVALID_REQUEST_DESCRIPTOR"
	CodeHandlerNotFound          Code = "HANDLER_NOT_FOUND"
	CodeInvalidHandler           Code = "INVALID_HANDLER"
	CodeInvalidStruct            Code = "INVALID_STRUCT"
	CodeValidationFailed         Code = "VALIDATION_FAILED"
	CodeProcessingFailed         Code = "PROCESSING_FAILED"
	CodeSessionFailed            Code = "SESSION_FAILED"
)

// Reasons refining CodeInvalidRequestDescriptor.
const (
	ReasonInvalidRequestData        = "invalid_request_data"
	ReasonInvalidEndpoint           = "invalid_endpoint"
	ReasonInvalidMethod             = "invalid_method"
	ReasonInvalidHeaders            = "invalid_headers"
	ReasonInvalidCookies            = "invalid_cookies"
	ReasonInvalidAuthenticationData = "invalid_authentication_data"
)

// Error is a structured pipeline error.
//
// StatusCode and Body are optional overrides: when set by whoever raised the
// error they force the HTTP status and response body. The dispatcher fills both
// in on the error it reports back, so they always mirror the final response.
type Error struct {
	Code             Code           `json:"code"`
	Reason           string         `json:"reason,omitempty"`
	Message          string         `json:"message"`
	MessageVariables map[string]any `json:"messageVariables,omitempty"`
	StatusCode       int            `json:"statusCode,omitempty"`
	Body             any            `json:"body,omitempty"`
	Cause            error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s:%s: %s", e.Code, e.Reason, e.Message)
	}
	return string(e.Code) + ": " + e.Message
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Reason == "" || t.Reason == e.Reason)
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// InvalidDescriptor creates an InvalidRequestDescriptor error for the given reason.
func InvalidDescriptor(reason, message string) *Error {
	return &Error{Code: CodeInvalidRequestDescriptor, Reason: reason, Message: message}
}

// Wrap converts err into an *Error. If err is an *Error, a copy of it is
// returned so the original is never mutated. If err wraps one, the copy keeps
// the inner Code and Reason but takes its message from the whole chain and its
// status, body and message variables from the outermost error declaring them.
// Otherwise a new Error with the given code is created, picking up whatever the
// foreign error declares.
func Wrap(err error, code Code) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		cp := *apiErr
		if apiErr != err {
			cp.Message = strings.Replace(err.Error(), apiErr.Error(), apiErr.Message, 1)
			cp.StatusCode = StatusOf(err)
			cp.Body = BodyOf(err)
			cp.MessageVariables = VariablesOf(err)
			cp.Cause = err
		}
		return &cp
	}
	return &Error{
		Code:             code,
		Message:          err.Error(),
		MessageVariables: VariablesOf(err),
		StatusCode:       StatusOf(err),
		Body:             BodyOf(err),
		Cause:            err,
	}
}

// Sentinels usable with errors.Is.
var (
	ErrInvalidRequestDescriptor = &Error{Code: CodeInvalidRequestDescriptor}
	ErrHandlerNotFound          = &Error{Code: CodeHandlerNotFound}
	ErrInvalidHandler           = &Error{Code: CodeInvalidHandler}
	ErrInvalidStruct            = &Error{Code: CodeInvalidStruct}
	ErrValidationFailed         = &Error{Code: CodeValidationFailed}
	ErrProcessingFailed         = &Error{Code: CodeProcessingFailed}
	ErrSessionFailed            = &Error{Code: CodeSessionFailed}
)
