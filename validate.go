package restful

import (
	"reflect"

	playground "github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
)

// Built-in checks and conversions for the common parameter shapes. They are
// all expressed through the Predicate/PredicateWith and Coerce constructors
// so custom ones compose the same way.

var varValidate = playground.New()

// IsInt reports whether value parses as an integer. Use with Predicate.
func IsInt(value any) bool {
	_, err := cast.ToInt64E(value)
	return err == nil
}

// IsBool reports whether value parses as a boolean. Use with Predicate.
func IsBool(value any) bool {
	_, err := cast.ToBoolE(value)
	return err == nil
}

// HasMin reports whether value is an integer no smaller than arg. Use with
// PredicateWith, or via MinInt.
func HasMin(value, arg any) bool {
	v, err := cast.ToInt64E(value)
	if err != nil {
		return false
	}
	min, err := cast.ToInt64E(arg)
	if err != nil {
		return false
	}
	return v >= min
}

// MinInt returns a Validator accepting integers greater than or equal to n.
func MinInt(n int) Validator {
	return PredicateWith(HasMin, n)
}

// OneOf returns a Validator accepting only the listed values.
func OneOf(values ...any) Validator {
	return Predicate(func(value any) bool {
		for _, v := range values {
			if reflect.DeepEqual(v, value) {
				return true
			}
		}
		return false
	})
}

// Var returns a Validator applying a `go-playground/validator` tag expression
// to the value, e.g. Var("email") or Var("uuid4"). See the validator package
// docs for the full tag vocabulary.
func Var(tag string) Validator {
	return Predicate(func(value any) bool {
		return varValidate.Var(value, tag) == nil
	})
}

// ToInt coerces value to an int. Use with Coerce.
func ToInt(value any) (any, error) {
	v, err := cast.ToIntE(value)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ToBool coerces value to a bool. Use with Coerce.
func ToBool(value any) (any, error) {
	v, err := cast.ToBoolE(value)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ToString coerces value to a string. Use with Coerce.
func ToString(value any) (any, error) {
	v, err := cast.ToStringE(value)
	if err != nil {
		return nil, err
	}
	return v, nil
}
