package restful

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsInt(t *testing.T) {
	for _, item := range []struct {
		value    any
		expected bool
	}{
		{"42", true},
		{42, true},
		{int64(7), true},
		{"0", true},
		{"-3", true},
		{"4.5", false},
		{"banana", false},
		{nil, true}, // cast treats nil as zero
		{true, true},
	} {
		assert.Equal(t, item.expected, IsInt(item.value), "value: %v", item.value)
	}
}

func TestIsBool(t *testing.T) {
	for _, item := range []struct {
		value    any
		expected bool
	}{
		{"true", true},
		{"false", true},
		{"1", true},
		{"0", true},
		{true, true},
		{"yes", false},
		{"banana", false},
	} {
		assert.Equal(t, item.expected, IsBool(item.value), "value: %v", item.value)
	}
}

func TestMinInt(t *testing.T) {
	min := MinInt(1)

	assert.True(t, min.Validate(1))
	assert.True(t, min.Validate("25"))
	assert.False(t, min.Validate(0))
	assert.False(t, min.Validate("-1"))
	assert.False(t, min.Validate("nope"))
}

func TestOneOf(t *testing.T) {
	v := OneOf("asc", "desc")

	assert.True(t, v.Validate("asc"))
	assert.True(t, v.Validate("desc"))
	assert.False(t, v.Validate("sideways"))
	assert.False(t, v.Validate(nil))
}

func TestVar(t *testing.T) {
	assert.True(t, Var("email").Validate("kari@example.com"))
	assert.False(t, Var("email").Validate("not-an-email"))
	assert.True(t, Var("uuid4").Validate("df9e34fc-2f32-4e17-9685-5b0e0582e1a4"))
	assert.False(t, Var("uuid4").Validate("not-a-uuid"))
}

func TestCoercers(t *testing.T) {
	v, err := ToInt("42")
	assert.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = ToInt("banana")
	assert.Error(t, err)

	v, err = ToBool("true")
	assert.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = ToBool("banana")
	assert.Error(t, err)

	v, err = ToString(42)
	assert.NoError(t, err)
	assert.Equal(t, "42", v)
}
