package apierror

// VariablesError attaches interpolation variables to a client-facing message.
type VariablesError struct {
	Message   string
	Variables map[string]any
	Cause     error
}

// WithVariables returns an error carrying err's message and the given variables.
func WithVariables(err error, variables map[string]any) *VariablesError {
	return &VariablesError{Message: err.Error(), Variables: variables, Cause: err}
}

// Variablesf builds a VariablesError from a plain message.
func Variablesf(message string, variables map[string]any) *VariablesError {
	return &VariablesError{Message: message, Variables: variables}
}

func (e *VariablesError) Error() string { return e.Message }

// Unwrap returns the wrapped cause.
func (e *VariablesError) Unwrap() error { return e.Cause }

// MessageVariables returns the interpolation variables.
func (e *VariablesError) MessageVariables() map[string]any { return e.Variables }
