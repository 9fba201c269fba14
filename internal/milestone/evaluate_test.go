package milestone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/timelogbot/internal/domain"
)

var today = time.Date(2025, 6, 30, 9, 15, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return domain.Day(today).AddDate(0, 0, -n)
}

func aggregate(hours float64, created time.Time) domain.Aggregate {
	return domain.Aggregate{Project: "Alpha", TotalHours: hours, CreationDate: created}
}

func TestEvaluate_Rules(t *testing.T) {
	tests := []struct {
		name    string
		agg     domain.Aggregate
		stored  domain.MilestoneState
		crossed []domain.Milestone
	}{
		{
			name: "below every threshold",
			agg:  aggregate(99.99, daysAgo(10)),
		},
		{
			name:    "exactly 100 hours",
			agg:     aggregate(100, daysAgo(10)),
			crossed: []domain.Milestone{domain.MilestoneHours100},
		},
		{
			name:    "jump past both hour thresholds",
			agg:     aggregate(350, daysAgo(10)),
			crossed: []domain.Milestone{domain.MilestoneHours100, domain.MilestoneHours300},
		},
		{
			name:    "300 after 100 already fired",
			agg:     aggregate(300, daysAgo(10)),
			stored:  domain.MilestoneState{Hours100Notified: true},
			crossed: []domain.Milestone{domain.MilestoneHours300},
		},
		{
			name:   "everything already fired",
			agg:    aggregate(1000, daysAgo(1000)),
			stored: domain.MilestoneState{Hours100Notified: true, Hours300Notified: true, AnniversaryNotified: true},
		},
		{
			name: "364 days is not an anniversary",
			agg:  aggregate(0, daysAgo(364)),
		},
		{
			name:    "exactly 365 days",
			agg:     aggregate(0, daysAgo(365)),
			crossed: []domain.Milestone{domain.MilestoneAnniversary},
		},
		{
			name: "indeterminate creation date skips anniversary",
			agg:  aggregate(0, time.Time{}),
		},
		{
			name:    "cached creation date is used when aggregate has none",
			agg:     aggregate(0, time.Time{}),
			stored:  domain.MilestoneState{CreationDate: daysAgo(500)},
			crossed: []domain.Milestone{domain.MilestoneAnniversary},
		},
		{
			name:   "cached creation date beats corrected aggregate date",
			agg:    aggregate(0, daysAgo(400)),
			stored: domain.MilestoneState{CreationDate: daysAgo(30)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(tt.agg, tt.stored, today)
			assert.Equal(t, tt.crossed, res.Crossed)
			assert.Equal(t, len(tt.crossed) > 0, res.Fired())
			for _, m := range tt.crossed {
				assert.True(t, res.State.Notified(m), "flag for %s should be set", m)
			}
		})
	}
}

func TestEvaluate_AlphaScenario(t *testing.T) {
	res := Evaluate(aggregate(120, daysAgo(400)), domain.MilestoneState{}, today)

	assert.Equal(t, []domain.Milestone{domain.MilestoneHours100, domain.MilestoneAnniversary}, res.Crossed)
	assert.True(t, res.State.Hours100Notified)
	assert.False(t, res.State.Hours300Notified)
	assert.True(t, res.State.AnniversaryNotified)
	assert.Equal(t, daysAgo(400), res.State.CreationDate)
	assert.Equal(t, 400, res.ElapsedDays)
}

func TestEvaluate_FiresAtMostOnceAcrossRuns(t *testing.T) {
	state := domain.MilestoneState{}
	counts := map[domain.Milestone]int{}

	// Hours keep growing and time keeps passing; each run feeds the
	// previous run's state back in, as the store would.
	hours := []float64{20, 90, 100, 150, 99, 320, 320, 500}
	for i, h := range hours {
		now := today.AddDate(0, 0, i*60)
		res := Evaluate(aggregate(h, daysAgo(0)), state, now)
		for _, m := range res.Crossed {
			counts[m]++
		}
		state = res.State
	}

	assert.Equal(t, map[domain.Milestone]int{
		domain.MilestoneHours100:    1,
		domain.MilestoneHours300:    1,
		domain.MilestoneAnniversary: 1,
	}, counts)
}

func TestEvaluate_IsIdempotentOnItsOwnOutput(t *testing.T) {
	agg := aggregate(350, daysAgo(400))

	first := Evaluate(agg, domain.MilestoneState{}, today)
	second := Evaluate(agg, first.State, today)

	assert.Len(t, first.Crossed, 3)
	assert.Empty(t, second.Crossed)
	assert.Equal(t, first.State, second.State)
}

func TestEvaluate_NeverClearsFlags(t *testing.T) {
	stored := domain.MilestoneState{Hours100Notified: true, Hours300Notified: true}
	res := Evaluate(aggregate(0, time.Time{}), stored, today)

	assert.True(t, res.State.Hours100Notified)
	assert.True(t, res.State.Hours300Notified)
	assert.Equal(t, -1, res.ElapsedDays)
}
