package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/timelogbot/internal/aggregate"
	"github.com/roach88/timelogbot/internal/config"
	"github.com/roach88/timelogbot/internal/confluence"
	"github.com/roach88/timelogbot/internal/domain"
	"github.com/roach88/timelogbot/internal/engine"
	"github.com/roach88/timelogbot/internal/metrics"
	"github.com/roach88/timelogbot/internal/notify"
	"github.com/roach88/timelogbot/internal/redmine"
	"github.com/roach88/timelogbot/internal/store"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	ConfigPath  string
	Database    string
	Project     string
	DryRun      bool
	Force       bool
	DumpPath    string
	MetricsFile string

	// Getenv supplies secret overrides (for testing). Default: os.Getenv.
	Getenv func(string) string

	// Notifier overrides mail delivery (for testing). If nil, real runs use
	// SMTP and dry runs log the message.
	Notifier notify.Notifier

	// RunIDGenerator overrides the run id generator (for testing).
	RunIDGenerator engine.RunIDGenerator
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Aggregate hours, fire milestones and update report pages",
		Long: `Run one sync over every configured project.

For each project the time entries are fetched and summarized, newly
crossed milestones are recorded and announced by e-mail (at most once
per project and milestone), and the report below the separator of the
project's wiki page is regenerated.

Example:
  timelogbot sync --config /etc/timelogbot.yaml
  timelogbot sync --config bot.yaml --project Alpha --dry-run -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite state database (overrides config)")
	cmd.Flags().StringVar(&opts.Project, "project", "", "only process this project")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report crossings without saving state, sending mail or writing pages")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "write pages even when unchanged")
	cmd.Flags().StringVar(&opts.DumpPath, "dump", "", "write per-project time entries as JSON to this file")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus run metrics to this file (overrides config)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg, err := config.LoadWithEnv(opts.ConfigPath, getenv)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidConfig, err.Error(), validationDetails(err))
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.MetricsFile != "" {
		cfg.MetricsFile = opts.MetricsFile
	}

	projects := cfg.Projects
	if opts.Project != "" {
		projects = []string{opts.Project}
	}

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	eng, rec, err := buildEngine(ctx, opts, cfg, st, logger)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to set up sync", err)
	}

	report, runErr := eng.Run(ctx, projects)

	if opts.DumpPath != "" {
		if err := writeDump(opts.DumpPath, report); err != nil {
			logger.Error("could not write dump", "path", opts.DumpPath, "error", err)
		} else {
			logger.Info("dump written", "path", opts.DumpPath)
		}
	}
	if cfg.MetricsFile != "" {
		if err := rec.WriteFile(cfg.MetricsFile); err != nil {
			logger.Error("could not write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}

	if runErr != nil {
		msg := fmt.Sprintf("%d of %d projects failed", len(report.Failures()), len(report.Projects))
		if formatter.Format != "json" {
			fmt.Fprint(formatter.Writer, renderSummary(report))
			for _, f := range report.Failures() {
				for _, e := range []error{f.Err, f.NotifyErr} {
					if e != nil {
						fmt.Fprintf(formatter.Writer, "  %s: %v\n", f.Project, e)
					}
				}
			}
		}
		_ = formatter.Error(ErrCodeSyncFailed, msg, summarize(report))
		return WrapExitError(ExitFailure, "sync finished with errors", runErr)
	}
	return formatter.Success(summarize(report), renderSummary(report))
}

// buildEngine wires the configured collaborators into an engine.
func buildEngine(ctx context.Context, opts *SyncOptions, cfg *config.Config, st *store.Store, logger *slog.Logger) (*engine.Engine, *metrics.Recorder, error) {
	source, err := redmine.NewClient(redmine.Config{
		BaseURL:           cfg.Redmine.URL,
		APIKey:            cfg.Redmine.APIKey.Value(),
		BudgetField:       cfg.Redmine.BudgetField,
		RequestsPerSecond: cfg.Redmine.RequestsPerSecond,
	})
	if err != nil {
		return nil, nil, err
	}

	wiki, err := confluence.NewClient(ctx, confluence.Config{
		APIURL:    cfg.Confluence.APIURL,
		User:      cfg.Confluence.User,
		Token:     cfg.Confluence.APIToken.Value(),
		PageTitle: cfg.PageTitle,
	})
	if err != nil {
		return nil, nil, err
	}

	notifier := opts.Notifier
	switch {
	case notifier != nil:
	case opts.DryRun:
		notifier = notify.LogNotifier{Logger: logger}
	default:
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:           cfg.Email.Host,
			Port:           cfg.Email.Port,
			Username:       cfg.Email.User,
			Password:       cfg.Email.Password.Value(),
			From:           cfg.Email.Sender,
			AllowPlaintext: cfg.Email.AllowPlaintext,
			Logger:         logger,
		})
	}
	rec := metrics.NewRecorder()
	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(rec),
		engine.WithConcurrency(cfg.Concurrency),
		engine.WithSpacePrefix(cfg.SpacePrefix),
		engine.WithSeparator(cfg.Separator),
		engine.WithNameNormalizer(domain.NameNormalizer{FoldDiacritics: cfg.FoldDiacritics}),
		engine.WithRetry(engine.RetryConfig{
			Attempts:       cfg.Retry.Attempts,
			InitialBackoff: cfg.Retry.InitialBackoff.Duration(),
			MaxBackoff:     cfg.Retry.MaxBackoff.Duration(),
		}),
		engine.WithDryRun(opts.DryRun),
		engine.WithForce(opts.Force),
	}
	if opts.RunIDGenerator != nil {
		engineOpts = append(engineOpts, engine.WithRunIDGenerator(opts.RunIDGenerator))
	}

	eng := engine.New(
		aggregate.New(source),
		st,
		wiki,
		notify.NewDispatcher(notifier, cfg.Recipients),
		engineOpts...,
	)
	return eng, rec, nil
}

// projectSummary is the JSON form of one project result.
type projectSummary struct {
	Project       string             `json:"project"`
	Hours         float64            `json:"hours"`
	Crossed       []domain.Milestone `json:"crossed"`
	Notified      bool               `json:"notified"`
	PageWritten   bool               `json:"page_written"`
	PageUnchanged bool               `json:"page_unchanged"`
	Error         string             `json:"error,omitempty"`
	NotifyError   string             `json:"notify_error,omitempty"`
}

type runSummary struct {
	RunID    string           `json:"run_id"`
	DryRun   bool             `json:"dry_run"`
	Projects []projectSummary `json:"projects"`
}

func summarize(r *engine.Report) runSummary {
	out := runSummary{RunID: r.RunID, DryRun: r.DryRun, Projects: make([]projectSummary, 0, len(r.Projects))}
	for _, p := range r.Projects {
		ps := projectSummary{
			Project:       p.Project,
			Hours:         p.Hours,
			Crossed:       p.Crossed,
			Notified:      p.Notified,
			PageWritten:   p.PageWritten,
			PageUnchanged: p.PageUnchanged,
		}
		if ps.Crossed == nil {
			ps.Crossed = []domain.Milestone{}
		}
		if p.Err != nil {
			ps.Error = p.Err.Error()
		}
		if p.NotifyErr != nil {
			ps.NotifyError = p.NotifyErr.Error()
		}
		out.Projects = append(out.Projects, ps)
	}
	return out
}

func renderSummary(r *engine.Report) string {
	var b strings.Builder
	if r.DryRun {
		b.WriteString("Dry run: nothing was saved, sent or written.\n")
	}
	for _, p := range r.Projects {
		page := "unchanged"
		switch {
		case p.PageWritten:
			page = "written"
		case p.Err != nil:
			page = "failed"
		case r.DryRun && !p.PageUnchanged:
			page = "would write"
		}
		fmt.Fprintf(&b, "%-25s %8.2fh  page: %s", p.Project, p.Hours, page)
		if len(p.Crossed) > 0 {
			labels := make([]string, len(p.Crossed))
			for i, m := range p.Crossed {
				labels[i] = m.Describe()
			}
			fmt.Fprintf(&b, "  milestones: %s", strings.Join(labels, ", "))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "run %s: %d project(s)\n", r.RunID, len(r.Projects))
	return b.String()
}
