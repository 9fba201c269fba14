package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/timelogbot/internal/domain"
)

func TestRecorder_Counts(t *testing.T) {
	r := NewRecorder()

	r.ProjectDone(OutcomeOK)
	r.ProjectDone(OutcomeOK)
	r.ProjectDone(OutcomeFailed)
	r.MilestonesFired([]domain.Milestone{domain.MilestoneHours100, domain.MilestoneAnniversary})
	r.MilestonesFired([]domain.Milestone{domain.MilestoneHours100})
	r.NotificationFailed()
	r.ProjectHours("Alpha", 120.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.projects.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.projects.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.milestones.WithLabelValues(string(domain.MilestoneHours100))))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.milestones.WithLabelValues(string(domain.MilestoneAnniversary))))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notificationFailures))
	assert.Equal(t, 120.5, testutil.ToFloat64(r.hours.WithLabelValues("Alpha")))
}

func TestRecorder_WriteFile(t *testing.T) {
	r := NewRecorder()
	r.ProjectDone(OutcomeOK)
	r.ProjectHours("Alpha", 3)
	r.RunFinished(1700000000)

	path := filepath.Join(t.TempDir(), "timelogbot.prom")
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `timelogbot_projects_total{outcome="ok"} 1`)
	assert.Contains(t, text, `timelogbot_project_hours{project="Alpha"} 3`)
	assert.Contains(t, text, "# TYPE timelogbot_last_run_timestamp_seconds gauge")
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.ProjectDone(OutcomeOK)
	r.MilestonesFired([]domain.Milestone{domain.MilestoneHours100})
	r.NotificationFailed()
	r.ProjectHours("Alpha", 1)
	r.RunFinished(1)
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteFile(filepath.Join(t.TempDir(), "never.prom")))
}
