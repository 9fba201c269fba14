// Package milestone detects one-time milestone crossings.
//
// Evaluation is a pure function of the current aggregate, the stored
// MilestoneState and the current date. Every rule is checked on every run
// and each one is guarded by its own monotonic flag, so re-running an
// evaluation against the state it produced never reports a crossing twice.
package milestone

import (
	"time"

	"github.com/roach88/timelogbot/internal/domain"
)

// Result is the outcome of one evaluation.
type Result struct {
	// Crossed lists the newly crossed milestones in reporting order
	// (hours100, hours300, anniversary). Empty when nothing fired.
	Crossed []domain.Milestone

	// State is the updated state to persist. It is the stored state with
	// the flags of Crossed set and the creation date cached.
	State domain.MilestoneState

	// ElapsedDays is the number of days since the effective creation
	// date, or -1 when the creation date is indeterminate.
	ElapsedDays int
}

// Fired reports whether any milestone was newly crossed.
func (r Result) Fired() bool {
	return len(r.Crossed) > 0
}

// Evaluate compares agg against stored and returns the milestones newly
// crossed as of today.
//
// Hour milestones fire when TotalHours reaches or exceeds the threshold and
// the flag is unset; a jump past several thresholds fires all of them. The
// anniversary fires when at least AnniversaryDays have passed since the
// creation date. A cached creation date in stored takes precedence over the
// aggregate's, and an indeterminate date skips the anniversary check.
func Evaluate(agg domain.Aggregate, stored domain.MilestoneState, today time.Time) Result {
	next := stored
	if next.CreationDate.IsZero() && agg.HasCreationDate() {
		next.CreationDate = domain.Day(agg.CreationDate)
	}

	res := Result{ElapsedDays: -1}

	for _, th := range domain.HourThresholds {
		if next.Notified(th.Milestone) {
			continue
		}
		if agg.TotalHours >= th.Hours {
			res.Crossed = append(res.Crossed, th.Milestone)
			next = next.Mark(th.Milestone)
		}
	}

	if !next.CreationDate.IsZero() {
		res.ElapsedDays = domain.DaysBetween(next.CreationDate, today)
		if !next.AnniversaryNotified && res.ElapsedDays >= domain.AnniversaryDays {
			res.Crossed = append(res.Crossed, domain.MilestoneAnniversary)
			next = next.Mark(domain.MilestoneAnniversary)
		}
	}

	res.State = next
	return res
}
