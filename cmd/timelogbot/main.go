// Command timelogbot keeps Confluence time log pages in step with Redmine
// and announces project milestones by e-mail.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/timelogbot/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// Commands report their own ExitErrors; flag and usage errors are
		// printed here.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
