package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizer_Normalize(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		caseSensitive bool
		expected      string
	}{
		{name: "unchanged", raw: "Credit Card", caseSensitive: true, expected: "Credit Card"},
		{name: "trims surrounding whitespace", raw: "  Cash\t", caseSensitive: true, expected: "Cash"},
		{name: "collapses internal whitespace", raw: "Flash   Cab Co", caseSensitive: true, expected: "Flash Cab Co"},
		{name: "keeps case when sensitive", raw: "MOBILE", caseSensitive: true, expected: "MOBILE"},
		{name: "folds case when insensitive", raw: " Credit  CARD ", caseSensitive: false, expected: "credit card"},
		{name: "empty stays empty", raw: "", caseSensitive: true, expected: ""},
		{name: "whitespace only is empty", raw: " \n\t ", caseSensitive: false, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Normalizer{CaseSensitive: tt.caseSensitive}
			assert.Equal(t, tt.expected, n.Normalize(tt.raw))
		})
	}
}

func TestClean_KeepsCase(t *testing.T) {
	assert.Equal(t, "Credit Card", Clean("  Credit \t Card "))
	assert.Equal(t, "", Clean("   "))
}
