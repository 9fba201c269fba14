package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/timelogbot/internal/domain"
	"github.com/roach88/timelogbot/internal/store"
)

// StateOptions holds flags for the state commands.
type StateOptions struct {
	*RootOptions
	Database string
}

// NewStateCommand creates the state command and its list/show subcommands.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect stored milestone state",
		Long: `Inspect the milestone flags and firing history kept in the state database.

Example:
  timelogbot state list --db ./timelogbot.db
  timelogbot state show Alpha --db ./timelogbot.db --format json`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite state database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List every project with stored state",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStateList(opts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "show <project>",
		Short:         "Show the state and firing history of one project",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStateShow(opts, args[0], cmd)
		},
	})

	return cmd
}

// openExisting opens the state database, refusing to create a new one.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}
	return store.Open(path)
}

func runStateList(opts *StateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openExisting(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	states, err := st.List(cmdContext(cmd))
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list state", err)
	}

	var b strings.Builder
	if len(states) == 0 {
		b.WriteString("No stored state.\n")
	}
	for _, ps := range states {
		fmt.Fprintf(&b, "%-25s %s  created: %s\n", ps.Project, flagSummary(ps.State), dateOrUnknown(ps.State))
	}
	return formatter.Success(states, b.String())
}

type stateDetail struct {
	Project string                `json:"project"`
	State   domain.MilestoneState `json:"state"`
	Firings []store.Firing        `json:"firings"`
}

func runStateShow(opts *StateOptions, project string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openExisting(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmdContext(cmd)
	name := domain.NameNormalizer{}.Normalize(project)
	state, err := st.Load(ctx, name)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load state", err)
	}
	firings, err := st.Firings(ctx, name)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load firings", err)
	}
	if state == (domain.MilestoneState{}) && len(firings) == 0 {
		msg := fmt.Sprintf("no stored state for project %q", name)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitFailure, msg)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Project:  %s\n", name)
	fmt.Fprintf(&b, "Created:  %s\n", dateOrUnknown(state))
	fmt.Fprintf(&b, "Flags:    %s\n", flagSummary(state))
	if len(firings) > 0 {
		b.WriteString("Firings:\n")
	}
	for _, f := range firings {
		status := "delivered " + f.DeliveredAt.Format("2006-01-02 15:04")
		switch {
		case f.DeliveryError != "":
			status = "failed: " + f.DeliveryError
		case f.DeliveredAt.IsZero():
			status = "not delivered"
		}
		fmt.Fprintf(&b, "  %-12s %s  run %s  %s\n", f.Milestone, f.FiredAt.Format("2006-01-02 15:04"), f.RunID, status)
	}

	return formatter.Success(stateDetail{Project: name, State: state, Firings: firings}, b.String())
}

func flagSummary(s domain.MilestoneState) string {
	parts := make([]string, 0, len(domain.AllMilestones))
	for _, m := range domain.AllMilestones {
		mark := "-"
		if s.Notified(m) {
			mark = "x"
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", mark, m))
	}
	return strings.Join(parts, " ")
}

func dateOrUnknown(s domain.MilestoneState) string {
	if s.CreationDate.IsZero() {
		return "unknown"
	}
	return s.CreationDate.Format("2006-01-02")
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
