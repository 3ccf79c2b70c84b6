package restful

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Validator checks a raw parameter value before coercion. Implementations
// report whether the value is acceptable; they never mutate it.
type Validator interface {
	Validate(value any) bool
}

type predicate func(any) bool

func (p predicate) Validate(value any) bool {
	return p(value)
}

// Predicate adapts a plain check function into a Validator.
func Predicate(fn func(value any) bool) Validator {
	return predicate(fn)
}

type predicateWith struct {
	fn  func(value, arg any) bool
	arg any
}

func (p predicateWith) Validate(value any) bool {
	return p.fn(value, p.arg)
}

// PredicateWith adapts a parameterized check function into a Validator by
// binding its argument, e.g. `PredicateWith(hasMin, 1)`.
func PredicateWith(fn func(value, arg any) bool, arg any) Validator {
	return predicateWith{fn: fn, arg: arg}
}

// Coercer converts a validated value into its final type. A failed coercion
// returns the conversion error as-is; it is not one of the structured
// resolver failures.
type Coercer interface {
	Coerce(value any) (any, error)
}

type coercer func(any) (any, error)

func (c coercer) Coerce(value any) (any, error) {
	return c(value)
}

// Coerce adapts a plain conversion function into a Coercer.
func Coerce(fn func(value any) (any, error)) Coercer {
	return coercer(fn)
}

type coercerWith struct {
	fn   func(value any, args ...any) (any, error)
	args []any
}

func (c coercerWith) Coerce(value any) (any, error) {
	return c.fn(value, c.args...)
}

// CoerceWith adapts a parameterized conversion function into a Coercer by
// binding its arguments.
func CoerceWith(fn func(value any, args ...any) (any, error), args ...any) Coercer {
	return coercerWith{fn: fn, args: args}
}

// Field configures the resolution of one named parameter.
type Field struct {
	// Required fails resolution when the value is absent. Without it, absent
	// values fall back to Default.
	Required bool

	// Error overrides the structured error used for this field's failures
	// (missing required value or failed validation). When nil, each failure
	// gets a fresh 400 "invalid parameter format".
	Error *Error

	// Default is the value used when an optional field is absent. A nil
	// Default means the field simply stays absent. Defaults are taken as-is:
	// they are neither validated nor coerced.
	Default any

	// Validator, when set, must accept the raw value. It runs only on values
	// the caller actually provided, never on defaults.
	Validator Validator

	// Type, when set, coerces the value after validation.
	Type Coercer
}

// Fields maps parameter names to their resolution config for batch
// resolution via Resolve.
type Fields map[string]Field

// failure returns the structured error for this field, constructing the
// default fresh each time so callers can't share mutable state through it.
func (f Field) failure() error {
	if f.Error != nil {
		return f.Error
	}
	return Error400BadRequest("invalid parameter format")
}

// ResolveField resolves a single parameter. present reports whether the
// caller actually had a value for it (e.g. the query string or body map
// contained the key); value is ignored when present is false.
//
// The returned bool reports whether the result carries a value: absent
// optional fields without a Default resolve to nothing at all.
//
// Exactly two conditions produce the field's structured error: a missing
// required value and a failed validation. Coercion errors pass through
// verbatim so a malformed value is distinguishable from a missing one.
func ResolveField(value any, present bool, f Field) (any, bool, error) {
	if !present {
		if f.Required {
			return nil, false, f.failure()
		}
		if f.Default == nil {
			return nil, false, nil
		}
		return f.Default, true, nil
	}

	if f.Validator != nil && !f.Validator.Validate(value) {
		return nil, false, f.failure()
	}

	if f.Type == nil {
		return value, true, nil
	}

	coerced, err := f.Type.Coerce(value)
	if err != nil {
		return nil, false, err
	}
	return coerced, true, nil
}

// Resolve applies fields to src and returns the combined result: a shallow
// copy of src in which every configured field has been replaced by its
// resolved value. Keys without a Field config are passed through untouched.
// Fields absent from src are still resolved (picking up defaults or failing
// when required); a field that resolves to nothing leaves no key behind.
//
// Field names are processed in sorted order so failures are deterministic
// when several fields are bad. The first failure aborts the batch.
func Resolve(src map[string]any, fields Fields) (map[string]any, error) {
	out := make(map[string]any, len(src)+len(fields))
	for k, v := range src {
		out[k] = v
	}

	names := maps.Keys(fields)
	slices.Sort(names)

	for _, name := range names {
		value, present := src[name]
		resolved, ok, err := ResolveField(value, present, fields[name])
		if err != nil {
			return nil, err
		}
		if !ok {
			delete(out, name)
			continue
		}
		out[name] = resolved
	}

	return out, nil
}
