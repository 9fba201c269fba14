package page

import (
	"fmt"
	"html"
	"strings"

	"github.com/roach88/timelogbot/internal/domain"
)

// Render produces the generated report body for agg in Confluence storage
// format. The output is deterministic for a given aggregate, which keeps
// Merge a fixed point across runs with unchanged data.
func Render(agg domain.Aggregate) string {
	var b strings.Builder
	name := html.EscapeString(agg.Project)

	b.WriteString("\n")
	if agg.Budget > 0 {
		fmt.Fprintf(&b, "<h2>Project %s is %.1f%% complete</h2>\n", name, 100*agg.TotalHours/agg.Budget)
		fmt.Fprintf(&b, "<p>%.2f out of %.0f hours used.</p>\n", agg.TotalHours, agg.Budget)
	} else {
		fmt.Fprintf(&b, "<h2>Project %s</h2>\n", name)
		fmt.Fprintf(&b, "<p>%.2f hours logged.</p>\n", agg.TotalHours)
	}

	if agg.HasCreationDate() {
		fmt.Fprintf(&b, "<p>Project started on %s.</p>\n", agg.CreationDate.Format("2006-01-02"))
	}

	if len(agg.Months) == 0 {
		b.WriteString("<p>No time has been logged yet.</p>\n")
		return b.String()
	}

	b.WriteString("<p><table>\n")
	b.WriteString("<tr><th>Date</th><th>Hours spent</th></tr>\n")
	for _, mh := range agg.Months {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%.2f</td></tr>\n", mh.Month.Format("January 2006"), mh.Hours)
	}
	b.WriteString("</table></p>\n")

	return b.String()
}
