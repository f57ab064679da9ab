package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rparedes/taskgraph/internal/validate"
)

func newValidateCommand(buildApp func() (*App, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <job-file>",
		Short: "Validate a job specification without running it",
		Long: `Parse a job specification and run the five-pass validator against
it: structural checks, service/command existence, input validation,
identifier normalization, and graph-shape (dependency resolution and
cycle detection).

Exit code: 0 if valid, 1 if errors were found.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			return runValidate(cmd, app, args[0])
		},
	}
	return cmd
}

func runValidate(cmd *cobra.Command, app *App, jobPath string) error {
	spec, err := loadJobSpec(jobPath)
	if err != nil {
		return err
	}

	v := validate.New(app.Registry)
	report, _ := v.Validate("", spec.Tasks, validate.EmptyGraph)

	fmt.Fprintln(cmd.OutOrStdout(), report.String())
	if !report.IsValid {
		return fmt.Errorf("validation failed with %d error(s)", len(report.Errors))
	}
	return nil
}
