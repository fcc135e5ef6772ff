package schema

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Field describes one key of an object schema.
type Field struct {
	name       string
	rules      []validation.Rule
	optional   bool
	def        any
	hasDefault bool
}

// Key declares a required field validated by the given ozzo-validation rules.
func Key(name string, rules ...validation.Rule) *Field {
	return &Field{name: name, rules: rules}
}

// Optional allows the field to be absent.
func (f *Field) Optional() *Field {
	f.optional = true
	return f
}

// Default sets the value used when the field is absent. A field with a default
// is implicitly optional.
func (f *Field) Default(v any) *Field {
	f.def = v
	f.hasDefault = true
	return f
}

// ObjectSchema validates a map against a fixed set of keys.
type ObjectSchema struct {
	fields     []*Field
	allowExtra bool
}

// Object builds a schema from field declarations. Keys not declared are
// rejected unless AllowExtra is called.
func Object(fields ...*Field) *ObjectSchema {
	return &ObjectSchema{fields: fields}
}

// AllowExtra accepts keys that are not declared.
func (o *ObjectSchema) AllowExtra() *ObjectSchema {
	o.allowExtra = true
	return o
}

// Apply copies data, fills defaults for absent fields and validates the result.
func (o *ObjectSchema) Apply(data map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(data)+len(o.fields))
	for k, v := range data {
		out[k] = v
	}

	keys := make([]*validation.KeyRules, 0, len(o.fields))
	for _, f := range o.fields {
		if _, ok := out[f.name]; !ok && f.hasDefault {
			out[f.name] = f.def
		}
		kr := validation.Key(f.name, f.rules...)
		if f.optional || f.hasDefault {
			kr = kr.Optional()
		}
		keys = append(keys, kr)
	}

	rule := validation.Map(keys...)
	if o.allowExtra {
		rule = rule.AllowExtraKeys()
	}
	if err := validation.Validate(out, rule); err != nil {
		return nil, err
	}
	return out, nil
}
