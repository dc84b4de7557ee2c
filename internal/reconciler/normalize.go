package reconciler

import "strings"

// Normalizer turns a raw categorical value into a map table lookup key.
//
// Leading and trailing whitespace is removed and internal runs of whitespace
// collapse to a single space. Case is kept unless CaseSensitive is false, in
// which case lookup keys are lower-cased. Stored keys always keep the cleaned
// spelling they were first seen with.
type Normalizer struct {
	CaseSensitive bool
}

// Normalize returns the lookup key for raw. An empty result means the value
// is missing.
func (n Normalizer) Normalize(raw string) string {
	return n.fold(Clean(raw))
}

// Clean trims raw and collapses internal whitespace, keeping case.
func Clean(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

func (n Normalizer) fold(key string) string {
	if !n.CaseSensitive {
		return strings.ToLower(key)
	}
	return key
}
