package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roach88/timelogbot/internal/domain"
	"github.com/roach88/timelogbot/internal/store"
	"github.com/roach88/timelogbot/internal/testutil"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] run %d %s %s %.2fh crossed=%v page=%s\n",
				i+1, ev.Run, ev.Date, ev.Project, ev.Hours, ev.Crossed, ev.Page)
		}
	}
	return buf.String()
}

// evaluateAssertion dispatches an assertion to its checker.
func evaluateAssertion(ctx context.Context, st *store.Store, wiki *testutil.MemoryWiki, trace []TraceEvent, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(trace, a)
	case AssertTraceCount:
		return assertTraceCount(trace, a)
	case AssertFinalState:
		return assertFinalState(ctx, st, a)
	case AssertPageContains:
		return assertPageContains(wiki, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// crossings returns the milestones project crossed across the trace, in order.
func crossings(trace []TraceEvent, project string) []string {
	var out []string
	for _, ev := range trace {
		if ev.Project == project {
			out = append(out, ev.Crossed...)
		}
	}
	return out
}

// assertTraceContains checks that project crossed the milestone in some run.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	got := crossings(trace, a.Project)
	if slices.Contains(got, a.Milestone) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s crosses %s", a.Project, a.Milestone),
		Actual:   fmt.Sprintf("%s crossed %v", a.Project, got),
		Trace:    trace,
	}
}

// assertTraceOrder checks that the milestones in a.Order appear in that
// relative order among the project's crossings. Other crossings may be
// interleaved.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	got := crossings(trace, a.Project)
	next := 0
	for _, m := range got {
		if next < len(a.Order) && m == a.Order[next] {
			next++
		}
	}
	if next == len(a.Order) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("%s crosses %v in order", a.Project, a.Order),
		Actual:   fmt.Sprintf("%s crossed %v", a.Project, got),
		Trace:    trace,
	}
}

// assertTraceCount checks how often project crossed a.Milestone. Without a
// milestone it counts notification attempts for the project.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	what := a.Milestone
	if a.Milestone == "" {
		what = "notification attempts"
		for _, ev := range trace {
			if ev.Project == a.Project && len(ev.Crossed) > 0 {
				count++
			}
		}
	} else {
		for _, m := range crossings(trace, a.Project) {
			if m == a.Milestone {
				count++
			}
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%s: %d x %s", a.Project, a.Count, what),
		Actual:   fmt.Sprintf("%s: %d x %s", a.Project, count, what),
		Trace:    trace,
	}
}

// assertFinalState compares the stored state of a project with a.Expect.
// Supported keys: hours100, hours300, anniversary (bool) and creation_date
// (YYYY-MM-DD, or "" for unknown).
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	state, err := st.Load(ctx, a.Project)
	if err != nil {
		return fmt.Errorf("load state of %s: %w", a.Project, err)
	}

	var mismatches []string
	for key, want := range a.Expect {
		switch key {
		case "creation_date":
			got := ""
			if !state.CreationDate.IsZero() {
				got = state.CreationDate.Format(dateLayout)
			}
			wantDate := fmt.Sprint(want)
			// yaml.v3 decodes unquoted dates into time.Time.
			if t, ok := want.(time.Time); ok {
				wantDate = t.Format(dateLayout)
			}
			if wantDate != got {
				mismatches = append(mismatches, fmt.Sprintf("creation_date=%q (want %q)", got, wantDate))
			}
		default:
			m, err := domain.ParseMilestone(key)
			if err != nil {
				return fmt.Errorf("final_state: %w", err)
			}
			wantFlag, ok := want.(bool)
			if !ok {
				return fmt.Errorf("final_state: %s must be a bool, got %T", key, want)
			}
			if got := state.Notified(m); got != wantFlag {
				mismatches = append(mismatches, fmt.Sprintf("%s=%t (want %t)", key, got, wantFlag))
			}
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	slices.Sort(mismatches)
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("%s state %v", a.Project, a.Expect),
		Actual:   strings.Join(mismatches, ", "),
	}
}

// assertPageContains checks the final text of a wiki page.
func assertPageContains(wiki *testutil.MemoryWiki, a Assertion) error {
	text, ok := wiki.Page(a.Space)
	if !ok {
		return &AssertionError{
			Type:     AssertPageContains,
			Expected: fmt.Sprintf("page in space %q", a.Space),
			Actual:   "no page",
		}
	}
	if strings.Contains(text, a.Text) {
		return nil
	}
	return &AssertionError{
		Type:     AssertPageContains,
		Expected: fmt.Sprintf("page of %q contains %q", a.Space, a.Text),
		Actual:   text,
	}
}
