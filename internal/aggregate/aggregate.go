// Package aggregate reduces raw time entries to per-project summaries.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/roach88/timelogbot/internal/domain"
)

// Source fetches the raw time entries logged against a project.
//
// The project name must match the source's own naming exactly. A source
// with no entries for the name returns an empty slice (or domain.ErrNoData);
// any transport problem is returned as an error.
type Source interface {
	FetchEntries(ctx context.Context, project string) ([]domain.TimeEntry, error)
}

// InfoSource is implemented by sources that also expose project metadata
// (explicit start date, ordered hours).
type InfoSource interface {
	FetchInfo(ctx context.Context, project string) (domain.ProjectInfo, error)
}

// Aggregator pulls entries from a Source and summarizes them.
// Aggregator holds no mutable state and is safe for concurrent use.
type Aggregator struct {
	source Source
}

// New creates an Aggregator reading from src.
func New(src Source) *Aggregator {
	return &Aggregator{source: src}
}

// Aggregate fetches all entries for project and returns their summary along
// with the entries themselves. A project unknown to the source yields a
// zero-hours aggregate with an indeterminate creation date and no error.
func (a *Aggregator) Aggregate(ctx context.Context, project string) (domain.Aggregate, []domain.TimeEntry, error) {
	entries, err := a.source.FetchEntries(ctx, project)
	if err != nil && !errors.Is(err, domain.ErrNoData) {
		return domain.Aggregate{}, nil, fmt.Errorf("fetch entries for %q: %w", project, err)
	}

	var info domain.ProjectInfo
	if is, ok := a.source.(InfoSource); ok {
		info, err = is.FetchInfo(ctx, project)
		if err != nil && !errors.Is(err, domain.ErrNoData) {
			return domain.Aggregate{}, nil, fmt.Errorf("fetch info for %q: %w", project, err)
		}
	}

	agg, err := Summarize(project, entries, info)
	if err != nil {
		return domain.Aggregate{}, nil, err
	}
	return agg, entries, nil
}

// Summarize reduces entries to an Aggregate. The result is deterministic for
// a given set of entries regardless of their order.
//
// Totals are rounded to hundredths so that a sum like 1000 x 0.1 counts as
// exactly 100 hours.
//
// The creation date is the explicit start date from info when present,
// otherwise the earliest entry date. Months are listed most recent first.
func Summarize(project string, entries []domain.TimeEntry, info domain.ProjectInfo) (domain.Aggregate, error) {
	agg := domain.Aggregate{
		Project:    project,
		Budget:     info.Budget,
		Months:     []domain.MonthHours{},
		EntryCount: len(entries),
	}

	sorted := make([]domain.TimeEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].Hours < sorted[j].Hours
	})

	byMonth := make(map[time.Time]float64)
	var earliest time.Time
	for i, e := range sorted {
		if e.Hours < 0 {
			return domain.Aggregate{}, fmt.Errorf("%w: entry %d of %q has negative hours %.2f",
				domain.ErrInvalidEntry, i, project, e.Hours)
		}
		if e.Date.IsZero() {
			return domain.Aggregate{}, fmt.Errorf("%w: entry %d of %q has no date",
				domain.ErrInvalidEntry, i, project)
		}

		day := domain.Day(e.Date)
		if earliest.IsZero() || day.Before(earliest) {
			earliest = day
		}
		agg.TotalHours += e.Hours
		byMonth[monthOf(day)] += e.Hours
	}

	agg.TotalHours = roundHours(agg.TotalHours)
	agg.CreationDate = earliest
	if !info.StartDate.IsZero() {
		agg.CreationDate = domain.Day(info.StartDate)
	}

	for month, hours := range byMonth {
		agg.Months = append(agg.Months, domain.MonthHours{Month: month, Hours: roundHours(hours)})
	}
	sort.Slice(agg.Months, func(i, j int) bool {
		return agg.Months[i].Month.After(agg.Months[j].Month)
	})

	return agg, nil
}

// roundHours rounds to hundredths of an hour, the precision the report
// shows. Milestones are evaluated against the rounded value.
func roundHours(h float64) float64 {
	return math.Round(h*100) / 100
}

func monthOf(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
}
