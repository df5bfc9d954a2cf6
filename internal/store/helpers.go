package store

import (
	"strings"
)

// minFAQSimilarity is the floor below which FindSimilarFAQ reports no
// match at all. The router applies its own, stricter threshold on top.
const minFAQSimilarity = 0.5

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// trigramSet builds the set of character trigrams of a normalized string,
// padded the way pg_trgm pads (two leading spaces, one trailing).
func trigramSet(s string) map[string]struct{} {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	padded := "  " + s + " "
	set := make(map[string]struct{})
	for i := 0; i+3 <= len(padded); i++ {
		set[padded[i:i+3]] = struct{}{}
	}
	return set
}

// textSimilarity approximates pg_trgm's SIMILARITY() for backends without
// trigram support: shared trigrams over the union of both trigram sets.
func textSimilarity(a, b string) float64 {
	sa := trigramSet(a)
	sb := trigramSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	shared := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			shared++
		}
	}
	union := len(sa) + len(sb) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
