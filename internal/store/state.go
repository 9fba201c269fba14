package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/timelogbot/internal/domain"
)

// ProjectState is one stored row, as listed by List.
type ProjectState struct {
	Project   string                `json:"project"`
	State     domain.MilestoneState `json:"state"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Firing records one milestone crossing and its delivery outcome.
type Firing struct {
	Project       string           `json:"project"`
	Milestone     domain.Milestone `json:"milestone"`
	RunID         string           `json:"run_id"`
	FiredAt       time.Time        `json:"fired_at"`
	DeliveredAt   time.Time        `json:"delivered_at,omitzero"`
	DeliveryError string           `json:"delivery_error,omitempty"`
}

// Load returns the stored state for project.
// An unseen project yields the zero MilestoneState and no error.
func (s *Store) Load(ctx context.Context, project string) (domain.MilestoneState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT hours100_notified, hours300_notified, anniversary_notified, creation_date
		FROM milestone_state
		WHERE project = ?
	`, project)

	var (
		st      domain.MilestoneState
		created sql.NullString
	)
	err := row.Scan(&st.Hours100Notified, &st.Hours300Notified, &st.AnniversaryNotified, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MilestoneState{}, nil
	}
	if err != nil {
		return domain.MilestoneState{}, fmt.Errorf("load state for %q: %w", project, err)
	}

	if created.Valid && created.String != "" {
		st.CreationDate, err = time.Parse(dateLayout, created.String)
		if err != nil {
			return domain.MilestoneState{}, fmt.Errorf("load state for %q: parse creation_date: %w", project, err)
		}
	}
	return st, nil
}

// Save persists state for project together with a firing record for each
// milestone in crossed. Everything is written in a single transaction.
//
// Save is monotonic: a flag that is already set stays set even if state has
// it false, and an existing creation_date is kept. Firing records use
// ON CONFLICT DO NOTHING so a milestone is recorded at most once.
func (s *Store) Save(ctx context.Context, project string, state domain.MilestoneState, crossed []domain.Milestone, runID string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save state for %q: begin tx: %w", project, err)
	}
	defer tx.Rollback() // No-op if committed

	var created any
	if !state.CreationDate.IsZero() {
		created = domain.Day(state.CreationDate).Format(dateLayout)
	}
	ts := now.UTC().Format(timeLayout)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO milestone_state
		(project, hours100_notified, hours300_notified, anniversary_notified, creation_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project) DO UPDATE SET
			hours100_notified    = MAX(hours100_notified, excluded.hours100_notified),
			hours300_notified    = MAX(hours300_notified, excluded.hours300_notified),
			anniversary_notified = MAX(anniversary_notified, excluded.anniversary_notified),
			creation_date        = COALESCE(creation_date, excluded.creation_date),
			updated_at           = excluded.updated_at
	`,
		project,
		state.Hours100Notified,
		state.Hours300Notified,
		state.AnniversaryNotified,
		created,
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("save state for %q: %w", project, err)
	}

	for _, m := range crossed {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO milestone_firings (project, milestone, run_id, fired_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(project, milestone) DO NOTHING
		`, project, string(m), runID, ts)
		if err != nil {
			return fmt.Errorf("save state for %q: record %s: %w", project, m, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save state for %q: commit: %w", project, err)
	}
	return nil
}

// RecordDelivery stores the outcome of the notification sent for the given
// milestones. A nil deliveryErr marks them delivered at now.
func (s *Store) RecordDelivery(ctx context.Context, project string, milestones []domain.Milestone, deliveryErr error, now time.Time) error {
	var (
		deliveredAt any
		errText     any
	)
	if deliveryErr == nil {
		deliveredAt = now.UTC().Format(timeLayout)
	} else {
		errText = deliveryErr.Error()
	}

	for _, m := range milestones {
		_, err := s.db.ExecContext(ctx, `
			UPDATE milestone_firings
			SET delivered_at = ?, delivery_error = ?
			WHERE project = ? AND milestone = ?
		`, deliveredAt, errText, project, string(m))
		if err != nil {
			return fmt.Errorf("record delivery for %q: %w", project, err)
		}
	}
	return nil
}

// List returns every stored project state ordered by project name.
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) List(ctx context.Context) ([]ProjectState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project, hours100_notified, hours300_notified, anniversary_notified, creation_date, updated_at
		FROM milestone_state
		ORDER BY project COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	states := []ProjectState{}
	for rows.Next() {
		var (
			ps      ProjectState
			created sql.NullString
			updated string
		)
		if err := rows.Scan(&ps.Project, &ps.State.Hours100Notified, &ps.State.Hours300Notified,
			&ps.State.AnniversaryNotified, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		if created.Valid && created.String != "" {
			if ps.State.CreationDate, err = time.Parse(dateLayout, created.String); err != nil {
				return nil, fmt.Errorf("parse creation_date of %q: %w", ps.Project, err)
			}
		}
		if ps.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
			return nil, fmt.Errorf("parse updated_at of %q: %w", ps.Project, err)
		}
		states = append(states, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate states: %w", err)
	}
	return states, nil
}

// Firings returns the firing records of project in the order they fired.
// Returns an empty slice (not nil) if none exist.
func (s *Store) Firings(ctx context.Context, project string) ([]Firing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project, milestone, run_id, fired_at, delivered_at, delivery_error
		FROM milestone_firings
		WHERE project = ?
		ORDER BY fired_at ASC, id ASC
	`, project)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}
	defer rows.Close()

	firings := []Firing{}
	for rows.Next() {
		var (
			f         Firing
			milestone string
			firedAt   string
			delivered sql.NullString
			errText   sql.NullString
		)
		if err := rows.Scan(&f.Project, &milestone, &f.RunID, &firedAt, &delivered, &errText); err != nil {
			return nil, fmt.Errorf("scan firing: %w", err)
		}
		f.Milestone = domain.Milestone(milestone)
		if f.FiredAt, err = time.Parse(timeLayout, firedAt); err != nil {
			return nil, fmt.Errorf("parse fired_at: %w", err)
		}
		if delivered.Valid {
			if f.DeliveredAt, err = time.Parse(timeLayout, delivered.String); err != nil {
				return nil, fmt.Errorf("parse delivered_at: %w", err)
			}
		}
		f.DeliveryError = errText.String
		firings = append(firings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firings: %w", err)
	}
	return firings, nil
}
