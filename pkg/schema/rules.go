package schema

import (
	"encoding/json"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Type rules. Like the built-in ozzo rules they accept nil so they can be
// combined with validation.Required or validation.NotNil.
var (
	String = validation.By(func(value interface{}) error {
		if value == nil {
			return nil
		}
		if _, ok := value.(string); !ok {
			return errors.New("must be a string")
		}
		return nil
	})

	Number = validation.By(func(value interface{}) error {
		switch value.(type) {
		case nil, float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
			return nil
		}
		return errors.New("must be a number")
	})

	Bool = validation.By(func(value interface{}) error {
		if value == nil {
			return nil
		}
		if _, ok := value.(bool); !ok {
			return errors.New("must be a boolean")
		}
		return nil
	})

	Array = validation.By(func(value interface{}) error {
		if value == nil {
			return nil
		}
		if _, ok := value.([]any); !ok {
			return errors.New("must be an array")
		}
		return nil
	})
)

// Nested validates an object-valued field against its own field declarations.
// Defaults declared on nested fields are not written back.
func Nested(fields ...*Field) validation.Rule {
	obj := Object(fields...)
	return validation.By(func(value interface{}) error {
		if value == nil {
			return nil
		}
		m, ok := value.(map[string]any)
		if !ok {
			return errors.New("must be an object")
		}
		_, err := obj.Apply(m)
		return err
	})
}
