package domain

import "fmt"

// Milestone identifies one kind of one-time threshold event.
type Milestone string

const (
	// MilestoneHours100 fires when a project first logs 100 hours.
	MilestoneHours100 Milestone = "hours100"

	// MilestoneHours300 fires when a project first logs 300 hours.
	MilestoneHours300 Milestone = "hours300"

	// MilestoneAnniversary fires when 365 days have passed since creation.
	MilestoneAnniversary Milestone = "anniversary"
)

// AnniversaryDays is the number of days after creation at which the
// anniversary milestone fires.
const AnniversaryDays = 365

// HourThreshold pairs an hour milestone with the hours that trigger it.
type HourThreshold struct {
	Milestone Milestone
	Hours     float64
}

// HourThresholds lists the hour milestones in ascending order.
var HourThresholds = []HourThreshold{
	{Milestone: MilestoneHours100, Hours: 100},
	{Milestone: MilestoneHours300, Hours: 300},
}

// AllMilestones lists every milestone in reporting order.
var AllMilestones = []Milestone{
	MilestoneHours100,
	MilestoneHours300,
	MilestoneAnniversary,
}

// Describe returns a human-readable label for the milestone.
func (m Milestone) Describe() string {
	switch m {
	case MilestoneHours100:
		return "100 hours logged"
	case MilestoneHours300:
		return "300 hours logged"
	case MilestoneAnniversary:
		return fmt.Sprintf("%d days since project start", AnniversaryDays)
	}
	return string(m)
}

// ParseMilestone converts a stored or user-supplied name to a Milestone.
func ParseMilestone(s string) (Milestone, error) {
	for _, m := range AllMilestones {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown milestone %q", s)
}
