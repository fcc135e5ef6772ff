package apierror

import (
	"errors"
	"fmt"
	"testing"
)

const errorTestPrefix = "apierror:error_test"

type teapotError struct{}

func (teapotError) Error() string { return "short and stout" }
func (teapotError) HTTPStatus() int { return 418 }

type legacyError struct{ code int }

func (e legacyError) Error() string { return "legacy" }
func (e legacyError) StatusCode() int { return e.code }

type bodyError struct{}

func (bodyError) Error() string { return "with body" }
func (bodyError) ResponseBody() any { return map[string]any{"custom": true} }

func TestError_Format(t *testing.T) {
	err := New(CodeHandlerNotFound, "no handler")
	if err.Error() != "HANDLER_NOT_FOUND: no handler" {
		t.Errorf("%s - Error() = %q", errorTestPrefix, err.Error())
	}

	desc := InvalidDescriptor(ReasonInvalidEndpoint, "endpoint must be a string")
	if desc.Error() != "INVALID_REQUEST_DESCRIPTOR:invalid_endpoint: endpoint must be a string" {
		t.Errorf("%s - Error() = %q", errorTestPrefix, desc.Error())
	}
}

func TestError_IsMatchesCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", Newf(CodeInvalidStruct, "foo: %s", "required"))
	if !errors.Is(err, ErrInvalidStruct) {
		t.Errorf("%s - expected errors.Is to match ErrInvalidStruct", errorTestPrefix)
	}
	if errors.Is(err, ErrHandlerNotFound) {
		t.Errorf("%s - expected errors.Is not to match ErrHandlerNotFound", errorTestPrefix)
	}

	desc := InvalidDescriptor(ReasonInvalidHeaders, "headers must be an object")
	if !errors.Is(desc, ErrInvalidRequestDescriptor) {
		t.Errorf("%s - expected reasoned error to match the bare sentinel", errorTestPrefix)
	}
	if errors.Is(desc, InvalidDescriptor(ReasonInvalidCookies, "")) {
		t.Errorf("%s - expected a different reason not to match", errorTestPrefix)
	}
}

func TestWrap_PlainError(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, CodeProcessingFailed)
	if err.Code != CodeProcessingFailed {
		t.Errorf("%s - Code = %s, want %s", errorTestPrefix, err.Code, CodeProcessingFailed)
	}
	if err.Message != "boom" {
		t.Errorf("%s - Message = %q, want boom", errorTestPrefix, err.Message)
	}
	if !errors.Is(err, cause) {
		t.Errorf("%s - expected cause to be reachable", errorTestPrefix)
	}
	if err.StatusCode != 0 || err.Body != nil {
		t.Errorf("%s - expected no declared status or body", errorTestPrefix)
	}
}

func TestWrap_CopiesExistingError(t *testing.T) {
	orig := &Error{Code: CodeInvalidHandler, Message: "bad", StatusCode: 503}
	got := Wrap(orig, CodeProcessingFailed)
	if got == orig {
		t.Fatalf("%s - expected a copy, got the same pointer", errorTestPrefix)
	}
	if got.Code != CodeInvalidHandler || got.StatusCode != 503 {
		t.Errorf("%s - copy lost fields: %+v", errorTestPrefix, got)
	}
	got.StatusCode = 500
	if orig.StatusCode != 503 {
		t.Errorf("%s - original was mutated", errorTestPrefix)
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, CodeProcessingFailed) != nil {
		t.Errorf("%s - expected nil for nil input", errorTestPrefix)
	}
}

func TestStatusOf(t *testing.T) {
	if got := StatusOf(teapotError{}); got != 418 {
		t.Errorf("%s - HTTPStatus declared: got %d, want 418", errorTestPrefix, got)
	}
	if got := StatusOf(fmt.Errorf("wrapped: %w", legacyError{code: 501})); got != 501 {
		t.Errorf("%s - StatusCode declared: got %d, want 501", errorTestPrefix, got)
	}
	if got := StatusOf(&Error{Code: CodeProcessingFailed, StatusCode: 409}); got != 409 {
		t.Errorf("%s - *Error declared: got %d, want 409", errorTestPrefix, got)
	}
	if got := StatusOf(errors.New("plain")); got != 0 {
		t.Errorf("%s - plain error: got %d, want 0", errorTestPrefix, got)
	}
}

func TestBodyOf(t *testing.T) {
	body, ok := BodyOf(bodyError{}).(map[string]any)
	if !ok || body["custom"] != true {
		t.Errorf("%s - BodyOf = %v", errorTestPrefix, BodyOf(bodyError{}))
	}
	if BodyOf(errors.New("plain")) != nil {
		t.Errorf("%s - expected nil body for plain error", errorTestPrefix)
	}
}

func TestWithVariables(t *testing.T) {
	err := WithVariables(errors.New("product {{name}} not found"), map[string]any{"name": "shoe"})
	if err.Error() != "product {{name}} not found" {
		t.Errorf("%s - Error() = %q", errorTestPrefix, err.Error())
	}
	vars := VariablesOf(fmt.Errorf("ctx: %w", err))
	if vars["name"] != "shoe" {
		t.Errorf("%s - VariablesOf = %v", errorTestPrefix, vars)
	}

	wrapped := Wrap(err, CodeValidationFailed)
	if wrapped.MessageVariables["name"] != "shoe" {
		t.Errorf("%s - Wrap lost variables: %v", errorTestPrefix, wrapped.MessageVariables)
	}
}

func TestIsErrorStatus(t *testing.T) {
	cases := map[int]bool{0: false, 200: false, 399: false, 400: true, 501: true, 599: true, 600: false}
	for code, want := range cases {
		if got := IsErrorStatus(code); got != want {
			t.Errorf("%s - IsErrorStatus(%d) = %v, want %v", errorTestPrefix, code, got, want)
		}
	}
}

type notFoundError struct{ cause error }

func (e notFoundError) Error() string { return "not found: " + e.cause.Error() }
func (e notFoundError) Unwrap() error { return e.cause }
func (e notFoundError) HTTPStatus() int { return 404 }

func TestWrap_KeepsOuterContext(t *testing.T) {
	inner := New(CodeProcessingFailed, "db down")
	got := Wrap(fmt.Errorf("load product 10: %w", inner), CodeValidationFailed)
	if got.Code != CodeProcessingFailed {
		t.Errorf("%s - Code = %s, want %s", errorTestPrefix, got.Code, CodeProcessingFailed)
	}
	if got.Message != "load product 10: db down" {
		t.Errorf("%s - Message = %q, want %q", errorTestPrefix, got.Message, "load product 10: db down")
	}
	if !errors.Is(got, ErrProcessingFailed) {
		t.Errorf("%s - expected errors.Is to match ErrProcessingFailed", errorTestPrefix)
	}
	if inner.Message != "db down" {
		t.Errorf("%s - inner error was mutated: %q", errorTestPrefix, inner.Message)
	}
}

func TestWrap_OuterDeclarationWins(t *testing.T) {
	inner := &Error{Code: CodeProcessingFailed, Message: "row missing", StatusCode: 500, MessageVariables: map[string]any{"id": 1}}
	got := Wrap(notFoundError{cause: inner}, CodeProcessingFailed)
	if got.StatusCode != 404 {
		t.Errorf("%s - StatusCode = %d, want 404", errorTestPrefix, got.StatusCode)
	}
	if got.MessageVariables["id"] != 1 {
		t.Errorf("%s - inner variables lost: %v", errorTestPrefix, got.MessageVariables)
	}

	innerOnly := Wrap(fmt.Errorf("ctx: %w", &Error{Code: CodeProcessingFailed, StatusCode: 409}), CodeProcessingFailed)
	if innerOnly.StatusCode != 409 {
		t.Errorf("%s - inner status not used as fallback: %d", errorTestPrefix, innerOnly.StatusCode)
	}
}

func TestStatusOf_Outermost(t *testing.T) {
	err := legacyError{code: 501}
	if got := StatusOf(&Error{Code: CodeProcessingFailed, StatusCode: 409, Cause: err}); got != 409 {
		t.Errorf("%s - outer *Error status: got %d, want 409", errorTestPrefix, got)
	}
	if got := StatusOf(&Error{Code: CodeProcessingFailed, Cause: err}); got != 501 {
		t.Errorf("%s - inner status fallback: got %d, want 501", errorTestPrefix, got)
	}
	if got := StatusOf(errors.Join(errors.New("plain"), teapotError{})); got != 418 {
		t.Errorf("%s - joined status: got %d, want 418", errorTestPrefix, got)
	}
}
