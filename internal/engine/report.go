package engine

import (
	"errors"
	"time"

	"github.com/roach88/timelogbot/internal/domain"
)

// ProjectResult is the outcome of processing one project.
type ProjectResult struct {
	Project string  `json:"project"`
	Hours   float64 `json:"hours"`

	// Crossed lists the milestones newly crossed in this run.
	Crossed []domain.Milestone `json:"crossed,omitempty"`

	// Notified is true when the combined notification was handed to the
	// notifier without error.
	Notified bool `json:"notified"`

	// PageWritten is true when the wiki page was written. PageUnchanged is
	// true when the merged text equaled the existing text and the write
	// was skipped.
	PageWritten   bool `json:"page_written"`
	PageUnchanged bool `json:"page_unchanged"`

	// Err is the error that aborted the project, if any.
	Err error `json:"-"`

	// NotifyErr is the delivery failure, if any. It does not abort the
	// project: flags stay set and the page is still written.
	NotifyErr error `json:"-"`

	// Entries are the raw time entries used for the aggregate.
	Entries []domain.TimeEntry `json:"-"`
}

// Failed reports whether the project hit any error.
func (r ProjectResult) Failed() bool {
	return r.Err != nil || r.NotifyErr != nil
}

// Report summarizes one run.
type Report struct {
	RunID    string          `json:"run_id"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
	DryRun   bool            `json:"dry_run"`
	Projects []ProjectResult `json:"projects"`
}

// Failures returns the results of projects that hit an error.
func (r *Report) Failures() []ProjectResult {
	var out []ProjectResult
	for _, p := range r.Projects {
		if p.Failed() {
			out = append(out, p)
		}
	}
	return out
}

// Err joins every project error of the run, or returns nil when all
// projects succeeded.
func (r *Report) Err() error {
	var errs []error
	for _, p := range r.Projects {
		if p.Err != nil {
			errs = append(errs, p.Err)
		}
		if p.NotifyErr != nil {
			errs = append(errs, p.NotifyErr)
		}
	}
	return errors.Join(errs...)
}
