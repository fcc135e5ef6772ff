package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Defaulter is implemented by typed payloads that fill their own defaults
// before validation.
type Defaulter interface {
	SetDefaults()
}

var sharedValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
})

// TypedSchema decodes data into T and validates it with `validate` struct tags.
type TypedSchema[T any] struct {
	validate *validator.Validate
}

// Typed returns a schema for the struct type T.
func Typed[T any]() *TypedSchema[T] {
	return &TypedSchema[T]{validate: sharedValidator()}
}

// Apply decodes data into T, applies defaults and validates it. The normalized
// data is T encoded back into a map.
func (s *TypedSchema[T]) Apply(data map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return nil, fmt.Errorf("%s: must be of type %s", typeErr.Field, typeErr.Type)
		}
		return nil, fmt.Errorf("invalid data: %w", err)
	}

	if d, ok := any(&v).(Defaulter); ok {
		d.SetDefaults()
	}

	if err := s.validate.Struct(v); err != nil {
		return nil, translate(err)
	}

	normalized, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(normalized, &out); err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	return out, nil
}

func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed on the '%s=%s' rule", field, fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed on the '%s' rule", field, fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
