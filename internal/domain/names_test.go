package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameNormalizer_Normalize(t *testing.T) {
	decomposed := "Go\u0308teborg_2024" // "o" + combining diaeresis
	composed := "G\u00f6teborg_2024"

	tests := []struct {
		name   string
		fold   bool
		input  string
		expect string
	}{
		{"nfc composes", false, decomposed, composed},
		{"already nfc", false, composed, composed},
		{"trims spaces", false, "  Alpha ", "Alpha"},
		{"case preserved", false, "ALPHA", "ALPHA"},
		{"fold removes marks", true, composed, "Goteborg_2024"},
		{"fold decomposed", true, decomposed, "Goteborg_2024"},
		{"fold swedish letters", true, "Åsa Ärlig", "Asa Arlig"},
		{"fold ascii untouched", true, "Alpha_0001", "Alpha_0001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NameNormalizer{FoldDiacritics: tt.fold}
			assert.Equal(t, tt.expect, n.Normalize(tt.input))
		})
	}
}
