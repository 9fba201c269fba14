package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NameNormalizer canonicalises project and space names before they are
// compared or used as storage keys.
//
// Names are always brought to Unicode NFC so that "ö" typed as one code
// point and as "o" + combining diaeresis compare equal. With FoldDiacritics
// the marks are removed entirely ("Göteborg" -> "Goteborg"), which matches
// sources that store ASCII-only identifiers.
type NameNormalizer struct {
	FoldDiacritics bool
}

// Normalize returns the canonical form of name. Surrounding whitespace is
// trimmed; nothing else about the name changes.
func (n NameNormalizer) Normalize(name string) string {
	name = strings.TrimSpace(name)
	if !n.FoldDiacritics {
		return norm.NFC.String(name)
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		return norm.NFC.String(name)
	}
	return folded
}
