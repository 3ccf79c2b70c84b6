package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	clauses := Parse("application/json, application/cbor;q=0.5, text/*; q=0.1")
	assert.Equal(t, []Accepted{
		{Type: "application/json", Weight: 1},
		{Type: "application/cbor", Weight: 0.5},
		{Type: "text/*", Weight: 0.1},
	}, clauses)

	assert.Nil(t, Parse(""))
	assert.Empty(t, Parse(" , "))

	// Bad weights fall back to 1.
	assert.Equal(t, []Accepted{{Type: "a/b", Weight: 1}}, Parse("a/b;q=banana"))
}

func TestBest(t *testing.T) {
	for _, item := range []struct {
		name     string
		header   string
		offers   []string
		expected string
	}{
		{"exact", "application/cbor", []string{"application/json", "application/cbor"}, "application/cbor"},
		{"weighted", "application/json;q=0.2, application/cbor;q=0.9", []string{"application/json", "application/cbor"}, "application/cbor"},
		{"tie prefers first offer", "application/json, application/cbor", []string{"application/cbor", "application/json"}, "application/cbor"},
		{"wildcard", "*/*", []string{"application/json"}, "application/json"},
		{"subtype wildcard", "application/*;q=0.8, text/html", []string{"application/json"}, "application/json"},
		{"zero weight excludes", "application/json;q=0", []string{"application/json"}, ""},
		{"nothing acceptable", "text/html", []string{"application/json"}, ""},
		{"empty header", "", []string{"application/json"}, ""},
		{"whitespace and params", " application/cbor ; charset=utf-8 ; q=0.7 , application/json;q=0.3", []string{"application/json", "application/cbor"}, "application/cbor"},
	} {
		t.Run(item.name, func(t *testing.T) {
			assert.Equal(t, item.expected, Best(item.header, item.offers...))
		})
	}
}
