// Package negotiation implements the slice of HTTP content negotiation
// needed to pick a response encoding from an Accept-style header: weighted
// clause parsing and best-offer selection, wildcards included.
package negotiation

import (
	"strconv"
	"strings"
)

// Accepted is one clause of an Accept-style header: a media type or wildcard
// pattern plus its quality weight.
type Accepted struct {
	Type   string
	Weight float64
}

// Parse splits an Accept-style header into its weighted clauses, preserving
// header order. A clause without a q parameter weighs 1; malformed weights
// are ignored.
func Parse(header string) []Accepted {
	if header == "" {
		return nil
	}

	clauses := strings.Split(header, ",")
	out := make([]Accepted, 0, len(clauses))
	for _, clause := range clauses {
		name, params, _ := strings.Cut(clause, ";")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		accepted := Accepted{Type: name, Weight: 1}
		for _, param := range strings.Split(params, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || strings.TrimSpace(key) != "q" {
				continue
			}
			if w, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				accepted.Weight = w
			}
		}
		out = append(out, accepted)
	}

	return out
}

// Best returns the offer the client prefers, or "" when the header accepts
// none of them. Offers are listed in server preference order, which breaks
// weight ties. Clause patterns may be exact types, `type/*`, or `*/*`; a
// weight of zero excludes whatever the pattern covers.
func Best(header string, offers ...string) string {
	best := ""
	bestWeight := 0.0
	bestRank := len(offers)

	for _, clause := range Parse(header) {
		if clause.Weight <= 0 {
			continue
		}
		for rank, offer := range offers {
			if !matches(clause.Type, offer) {
				continue
			}
			if clause.Weight > bestWeight || (clause.Weight == bestWeight && rank < bestRank) {
				best = offer
				bestWeight = clause.Weight
				bestRank = rank
			}
		}
	}

	return best
}

func matches(pattern, offer string) bool {
	if pattern == offer || pattern == "*/*" {
		return true
	}
	if major, sub, ok := strings.Cut(pattern, "/"); ok && sub == "*" {
		offerMajor, _, _ := strings.Cut(offer, "/")
		return offerMajor == major
	}
	return false
}
