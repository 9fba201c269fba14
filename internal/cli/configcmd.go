package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/timelogbot/internal/config"
)

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with configuration files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a configuration file",
		Long: `Check a configuration file against the schema and report every
violation with its line and column. Secrets may come from the
environment (TIMELOGBOT_REDMINE_API_KEY, TIMELOGBOT_CONFLUENCE_API_TOKEN,
TIMELOGBOT_SMTP_PASSWORD).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(rootOpts, args[0], cmd)
		},
	})

	return cmd
}

// configSummary is printed for a valid file.
type configSummary struct {
	Valid      bool     `json:"valid"`
	Projects   []string `json:"projects"`
	Recipients int      `json:"recipients"`
	Database   string   `json:"database"`
}

func runConfigValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := config.LoadWithEnv(path, os.Getenv)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidConfig, err.Error(), validationDetails(err))
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}

	summary := configSummary{
		Valid:      true,
		Projects:   cfg.Projects,
		Recipients: len(cfg.Recipients),
		Database:   cfg.Database,
	}
	text := fmt.Sprintf("%s: valid (%d project(s), %d recipient(s), database %s)\n",
		path, len(cfg.Projects), len(cfg.Recipients), cfg.Database)
	return formatter.Success(summary, text)
}

// validationDetails returns the per-field violations of a schema error,
// or nil for other errors.
func validationDetails(err error) []config.FieldError {
	var ve *config.ValidationError
	if errors.As(err, &ve) {
		return ve.Errors
	}
	return nil
}
