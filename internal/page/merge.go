package page

import "strings"

// DefaultSeparator is the marker written between user content and the
// generated report. The space matters: the wiki normalizes "<hr>" to this
// form on save, so searching for anything else would miss it next run.
const DefaultSeparator = "<hr />"

// Merger splices generated bodies into page text at a fixed separator.
type Merger struct {
	Separator string
}

// NewMerger creates a Merger for the given separator.
// An empty separator selects DefaultSeparator.
func NewMerger(separator string) Merger {
	if separator == "" {
		separator = DefaultSeparator
	}
	return Merger{Separator: separator}
}

// Split returns the bytes before the first separator occurrence and reports
// whether the separator was found. Without a separator the whole text is
// the prefix.
func (m Merger) Split(existing string) (prefix string, found bool) {
	idx := strings.Index(existing, m.Separator)
	if idx < 0 {
		return existing, false
	}
	return existing[:idx], true
}

// Merge returns prefix + separator + body, where prefix is everything in
// existing before the first separator. Anything from the separator onward
// is discarded.
//
// Merge is a fixed point: Merge(Merge(t, b), b) == Merge(t, b). The prefix
// never contains the separator, so the first occurrence in the output is
// always the one Merge wrote.
func (m Merger) Merge(existing, body string) string {
	prefix, _ := m.Split(existing)

	var b strings.Builder
	b.Grow(len(prefix) + len(m.Separator) + len(body))
	b.WriteString(prefix)
	b.WriteString(m.Separator)
	b.WriteString(body)
	return b.String()
}
