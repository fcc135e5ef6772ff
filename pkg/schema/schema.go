// Package schema validates and normalizes request data before a handler runs.
//
// A Schema receives the working request data and returns the normalized data
// (defaults applied) or an error whose message is the client-facing reason.
package schema

// Schema validates request data and returns its normalized form.
type Schema interface {
	Apply(data map[string]any) (map[string]any, error)
}

// Func adapts a function to Schema.
type Func func(data map[string]any) (map[string]any, error)

// Apply calls f.
func (f Func) Apply(data map[string]any) (map[string]any, error) { return f(data) }

// Sequence requires data to satisfy every schema in order. Each schema sees the
// output of the previous one, so defaults accumulate.
type Sequence []Schema

// Apply runs every schema of the sequence, stopping at the first failure.
func (s Sequence) Apply(data map[string]any) (map[string]any, error) {
	out := data
	for _, sc := range s {
		if sc == nil {
			continue
		}
		next, err := sc.Apply(out)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}
