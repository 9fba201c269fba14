package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/roach88/timelogbot/internal/aggregate"
	"github.com/roach88/timelogbot/internal/domain"
	"github.com/roach88/timelogbot/internal/engine"
	"github.com/roach88/timelogbot/internal/notify"
	"github.com/roach88/timelogbot/internal/store"
	"github.com/roach88/timelogbot/internal/testutil"
)

// Recipient receives every notification sent during a scenario.
const Recipient = "pm@example.org"

// errInjected is the cause of every injected collaborator failure.
var errInjected = errors.New("injected failure")

// env holds the collaborators shared by all runs of one scenario.
type env struct {
	store    *store.Store
	source   *testutil.MemorySource
	wiki     *testutil.MemoryWiki
	notifier *testutil.RecordingNotifier
	clock    *testutil.FixedClock
}

// Run executes a scenario and returns the result.
//
// Each scenario gets its own in-memory database, so scenarios are isolated
// from each other. The returned error reports harness failures (bad setup,
// store errors); failed expectations and assertions are recorded in the
// result instead.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	start, err := scenario.startTime()
	if err != nil {
		return nil, fmt.Errorf("invalid start date: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	e := &env{
		store:    st,
		source:   testutil.NewMemorySource(),
		wiki:     testutil.NewMemoryWiki(),
		notifier: testutil.NewRecordingNotifier(),
		clock:    testutil.NewFixedClock(start),
	}
	for space, text := range scenario.Pages {
		e.wiki.SetPage(space, text)
	}
	for project, info := range scenario.Info {
		pi := domain.ProjectInfo{Budget: info.Budget}
		if info.StartDate != "" {
			pi.StartDate, _ = time.Parse(dateLayout, info.StartDate)
		}
		e.source.SetInfo(project, pi)
	}

	result := NewResult()
	for i, step := range scenario.Runs {
		if err := e.runStep(ctx, scenario, i+1, step, result); err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}
	}

	for i, a := range scenario.Assertions {
		if err := evaluateAssertion(ctx, st, e.wiki, result.Trace, a); err != nil {
			result.AddError(fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return result, nil
}

func (e *env) runStep(ctx context.Context, scenario *Scenario, n int, step RunStep, result *Result) error {
	e.clock.AdvanceDays(step.AdvanceDays)
	today := domain.Day(e.clock.Now())

	for _, l := range step.Log {
		e.source.Log(l.Project, today.AddDate(0, 0, -l.DaysAgo), l.Hours)
	}
	for project, count := range step.FailSource {
		e.source.FailFor(project, domain.NewTransportError("fetch_entries", 503, errInjected), count)
	}
	if step.FailNotify {
		e.notifier.FailWith(errInjected)
	} else {
		e.notifier.FailWith(nil)
	}

	opts := []engine.Option{
		engine.WithClock(e.clock),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithRetry(engine.RetryConfig{Attempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}),
		engine.WithConcurrency(1),
		engine.WithSpacePrefix(scenario.SpacePrefix),
		engine.WithDryRun(step.DryRun),
		engine.WithForce(step.Force),
	}
	if scenario.Separator != "" {
		opts = append(opts, engine.WithSeparator(scenario.Separator))
	}

	eng := engine.New(
		aggregate.New(e.source),
		e.store,
		e.wiki,
		notify.NewDispatcher(e.notifier, []string{Recipient}),
		opts...,
	)

	mailsBefore := len(e.notifier.Sent())
	report, _ := eng.Run(ctx, scenario.Projects)
	if report == nil {
		return fmt.Errorf("engine returned no report")
	}
	mails := len(e.notifier.Sent()) - mailsBefore
	result.Mails = append(result.Mails, mails)

	date := today.Format(dateLayout)
	for _, pr := range report.Projects {
		result.Trace = append(result.Trace, traceEvent(n, date, pr))
	}

	if step.Expect != nil {
		for _, msg := range checkExpect(n, *step.Expect, report, mails) {
			result.AddError(msg)
		}
	}
	return nil
}

func traceEvent(run int, date string, pr engine.ProjectResult) TraceEvent {
	ev := TraceEvent{
		Run:      run,
		Date:     date,
		Project:  pr.Project,
		Hours:    pr.Hours,
		Crossed:  []string{},
		Notified: pr.Notified,
		Page:     PageSkipped,
	}
	for _, m := range pr.Crossed {
		ev.Crossed = append(ev.Crossed, string(m))
	}
	switch {
	case pr.PageWritten:
		ev.Page = PageWritten
	case pr.PageUnchanged:
		ev.Page = PageUnchanged
	}
	ev.Error = errorCode(pr.Err)
	ev.NotifyError = errorCode(pr.NotifyErr)
	return ev
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var se *engine.SyncError
	if errors.As(err, &se) {
		return string(se.Code)
	}
	return "UNKNOWN"
}

// checkExpect compares one run's report with its expectation and returns
// a message per mismatch.
func checkExpect(run int, want RunExpect, report *engine.Report, mails int) []string {
	var msgs []string
	if mails != want.Mails {
		msgs = append(msgs, fmt.Sprintf("run %d: expected %d mail(s), got %d", run, want.Mails, mails))
	}

	var failed []string
	for _, pr := range report.Projects {
		got := make([]string, 0, len(pr.Crossed))
		for _, m := range pr.Crossed {
			got = append(got, string(m))
		}
		expected := want.Crossed[pr.Project]
		if !slices.Equal(got, expected) {
			msgs = append(msgs, fmt.Sprintf("run %d: project %s crossed [%s], expected [%s]",
				run, pr.Project, strings.Join(got, ", "), strings.Join(expected, ", ")))
		}
		if pr.Failed() {
			failed = append(failed, pr.Project)
		}
	}

	wantFailed := slices.Clone(want.Failed)
	sort.Strings(failed)
	sort.Strings(wantFailed)
	if !slices.Equal(failed, wantFailed) {
		msgs = append(msgs, fmt.Sprintf("run %d: failed projects [%s], expected [%s]",
			run, strings.Join(failed, ", "), strings.Join(wantFailed, ", ")))
	}
	return msgs
}
