package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMilestoneState_MarkAndNotified(t *testing.T) {
	var s MilestoneState
	for _, m := range AllMilestones {
		assert.False(t, s.Notified(m), "fresh state should not have %s", m)
	}

	s = s.Mark(MilestoneHours300)
	assert.True(t, s.Notified(MilestoneHours300))
	assert.False(t, s.Notified(MilestoneHours100))
	assert.False(t, s.Notified(MilestoneAnniversary))
}

func TestMilestoneState_MarkDoesNotMutateReceiver(t *testing.T) {
	s := MilestoneState{}
	_ = s.Mark(MilestoneHours100)
	assert.False(t, s.Hours100Notified)
}

func TestDay_TruncatesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	in := time.Date(2024, 3, 10, 23, 45, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), Day(in))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2023, 1, 1, 18, 0, 0, 0, time.UTC)
	b := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, 365, DaysBetween(a, b))
	assert.Equal(t, 0, DaysBetween(a, a))
	assert.Equal(t, -365, DaysBetween(b, a))
}

func TestAggregate_HasCreationDate(t *testing.T) {
	assert.False(t, Aggregate{}.HasCreationDate())
	assert.True(t, Aggregate{CreationDate: time.Now()}.HasCreationDate())
}

func TestParseMilestone(t *testing.T) {
	for _, m := range AllMilestones {
		got, err := ParseMilestone(string(m))
		assert.NoError(t, err)
		assert.Equal(t, m, got)
	}

	_, err := ParseMilestone("hours200")
	assert.Error(t, err)
}
