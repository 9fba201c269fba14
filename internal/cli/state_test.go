package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/timelogbot/internal/domain"
	"github.com/roach88/timelogbot/internal/store"
)

func seedStateDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	now := time.Date(2025, 6, 30, 8, 0, 0, 0, time.UTC)
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	alpha := domain.MilestoneState{Hours100Notified: true, AnniversaryNotified: true, CreationDate: created}
	crossed := []domain.Milestone{domain.MilestoneHours100, domain.MilestoneAnniversary}
	require.NoError(t, st.Save(ctx, "Alpha", alpha, crossed, "run-1", now))
	require.NoError(t, st.RecordDelivery(ctx, "Alpha", crossed, errors.New("550 mailbox unavailable"), now))

	require.NoError(t, st.Save(ctx, "Beta", domain.MilestoneState{}, nil, "run-1", now))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestStateList_Text(t *testing.T) {
	db := seedStateDB(t)

	out, err := runCLI(t, "state", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "[x] hours100 [-] hours300 [x] anniversary")
	assert.Contains(t, out, "created: 2024-05-01")
	assert.Contains(t, out, "created: unknown")
}

func TestStateList_JSON(t *testing.T) {
	db := seedStateDB(t)

	out, err := runCLI(t, "--format", "json", "state", "list", "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string               `json:"status"`
		Data   []store.ProjectState `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "Alpha", resp.Data[0].Project)
	assert.Equal(t, "Beta", resp.Data[1].Project)
}

func TestStateShow(t *testing.T) {
	db := seedStateDB(t)

	out, err := runCLI(t, "state", "show", "Alpha", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Project:  Alpha")
	assert.Contains(t, out, "Created:  2024-05-01")
	assert.Contains(t, out, "hours100")
	assert.Contains(t, out, "run run-1")
	assert.Contains(t, out, "failed: 550 mailbox unavailable")
}

func TestStateShow_Unknown(t *testing.T) {
	db := seedStateDB(t)

	out, err := runCLI(t, "state", "show", "Gamma", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E004]")
}

func TestState_MissingDatabase(t *testing.T) {
	out, err := runCLI(t, "state", "list", "--db", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
}
