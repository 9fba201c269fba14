package domain

import (
	"time"
)

// TimeEntry is one logged record from the time-tracking source.
// Entries are transient: re-fetched every run and never persisted.
type TimeEntry struct {
	Project string    `json:"project"`
	Date    time.Time `json:"date"`
	Hours   float64   `json:"hours"`
}

// ProjectInfo holds optional project metadata some sources expose in
// addition to raw entries.
type ProjectInfo struct {
	StartDate time.Time `json:"start_date,omitzero"` // zero when unknown
	Budget    float64   `json:"budget,omitempty"`    // ordered hours, 0 when unknown
}

// MonthHours is the hour total for one calendar month.
type MonthHours struct {
	Month time.Time `json:"month"` // first day of the month, UTC
	Hours float64   `json:"hours"`
}

// Aggregate is the per-project summary derived from all time entries.
//
// TotalHours is recomputed from scratch every run. CreationDate is the
// explicit source start date when known, otherwise the earliest entry date,
// and zero when the source reported nothing.
type Aggregate struct {
	Project      string       `json:"project"`
	CreationDate time.Time    `json:"creation_date,omitzero"`
	TotalHours   float64      `json:"total_hours"`
	Budget       float64      `json:"budget,omitempty"`
	Months       []MonthHours `json:"months"` // most recent first
	EntryCount   int          `json:"entry_count"`
}

// HasCreationDate reports whether the creation date is determinate.
func (a Aggregate) HasCreationDate() bool {
	return !a.CreationDate.IsZero()
}

// MilestoneState is the durable per-project record of fired milestones.
//
// INVARIANT: every flag is monotonic. Once true it is never reset, and a
// recorded CreationDate is never replaced.
type MilestoneState struct {
	Hours100Notified    bool      `json:"hours100_notified"`
	Hours300Notified    bool      `json:"hours300_notified"`
	AnniversaryNotified bool      `json:"anniversary_notified"`
	CreationDate        time.Time `json:"creation_date,omitzero"` // cached, zero when never recorded
}

// Notified reports whether the given milestone has already fired.
func (s MilestoneState) Notified(m Milestone) bool {
	switch m {
	case MilestoneHours100:
		return s.Hours100Notified
	case MilestoneHours300:
		return s.Hours300Notified
	case MilestoneAnniversary:
		return s.AnniversaryNotified
	}
	return false
}

// Mark returns a copy of s with the flag for m set.
func (s MilestoneState) Mark(m Milestone) MilestoneState {
	switch m {
	case MilestoneHours100:
		s.Hours100Notified = true
	case MilestoneHours300:
		s.Hours300Notified = true
	case MilestoneAnniversary:
		s.AnniversaryNotified = true
	}
	return s
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
