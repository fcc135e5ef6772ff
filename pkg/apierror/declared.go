package apierror

type httpStatuser interface{ HTTPStatus() int }

type statusCoder interface{ StatusCode() int }

type bodier interface{ ResponseBody() any }

type variabler interface{ MessageVariables() map[string]any }

// StatusOf returns the HTTP status declared by err, or 0 when none is declared.
// *Error declares it through its StatusCode field; foreign errors may implement
// HTTPStatus() int or StatusCode() int. The outermost declaration in the chain
// wins.
func StatusOf(err error) int {
	var status int
	walk(err, func(e error) bool {
		switch v := e.(type) {
		case *Error:
			status = v.StatusCode
		case httpStatuser:
			status = v.HTTPStatus()
		case statusCoder:
			status = v.StatusCode()
		}
		return status != 0
	})
	return status
}

// BodyOf returns the response body declared by err, or nil.
func BodyOf(err error) any {
	var body any
	walk(err, func(e error) bool {
		switch v := e.(type) {
		case *Error:
			body = v.Body
		case bodier:
			body = v.ResponseBody()
		}
		return body != nil
	})
	return body
}

// VariablesOf returns the message variables declared by err, or nil.
func VariablesOf(err error) map[string]any {
	var vars map[string]any
	walk(err, func(e error) bool {
		switch v := e.(type) {
		case *Error:
			vars = v.MessageVariables
		case variabler:
			vars = v.MessageVariables()
		}
		return vars != nil
	})
	return vars
}

// walk calls fn on err and then on every error it wraps, outermost first,
// until fn returns true.
func walk(err error, fn func(error) bool) bool {
	for err != nil {
		if fn(err) {
			return true
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, e := range u.Unwrap() {
				if walk(e, fn) {
					return true
				}
			}
			return false
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			return false
		}
	}
	return false
}

// IsErrorStatus reports whether code is a 4xx or 5xx HTTP status.
func IsErrorStatus(code int) bool {
	return code >= 400 && code < 600
}
