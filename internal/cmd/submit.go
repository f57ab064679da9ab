package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rparedes/taskgraph/internal/config"
	"github.com/rparedes/taskgraph/internal/lock"
	"github.com/rparedes/taskgraph/internal/model"
	"github.com/rparedes/taskgraph/internal/orchestrator"
	"github.com/rparedes/taskgraph/internal/report"
)

func newSubmitCommand(buildApp func() (*App, error)) *cobra.Command {
	var outputPath string
	var htmlOutputPath string
	var persist bool

	cmd := &cobra.Command{
		Use:   "submit <job-file>",
		Short: "Submit a job specification and run it to completion",
		Long: `Parse a job specification (YAML or JSON), validate it, and run it
to completion, dispatching tasks to their registered handlers and
dynamically extending the graph as handlers spawn child tasks.

Exit code: 0 if the job succeeded, 1 if it failed or could not run.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			return runSubmit(cmd, app, args[0], outputPath, htmlOutputPath, persist)
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the job result as Markdown to this path (default stdout)")
	cmd.Flags().StringVar(&htmlOutputPath, "html", "", "also write the job result as HTML to this path")
	cmd.Flags().BoolVar(&persist, "persist", false, "persist the finished job result to the result store, in addition to the job file's own persist field")
	return cmd
}

func loadJobSpec(path string) (model.JobSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.JobSpec{}, fmt.Errorf("read job file: %w", err)
	}

	var spec model.JobSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &spec); err != nil {
			return model.JobSpec{}, fmt.Errorf("parse job file as json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return model.JobSpec{}, fmt.Errorf("parse job file as yaml: %w", err)
		}
	}
	return spec, nil
}

// applyConfigDefaults fills in JobSpec fields the submission left
// unset with this process's configured fallbacks, so an operator can
// change fleet-wide limits without touching every job file. A spec
// that explicitly sets a field always wins.
func applyConfigDefaults(spec *model.JobSpec, cfg *config.Config) {
	if spec.MaxTasks <= 0 {
		spec.MaxTasks = cfg.Defaults.MaxTasks
	}
	if spec.MaxDepth <= 0 {
		spec.MaxDepth = cfg.Defaults.MaxDepth
	}
	if spec.TimeoutMillis <= 0 {
		spec.TimeoutMillis = cfg.Defaults.TimeoutMillis
	}
	if spec.AbortOnFailure == nil {
		abort := cfg.Defaults.AbortOnFailure
		spec.AbortOnFailure = &abort
	}
}

func runSubmit(cmd *cobra.Command, app *App, jobPath, outputPath, htmlOutputPath string, persistFlag bool) error {
	spec, err := loadJobSpec(jobPath)
	if err != nil {
		return err
	}
	spec.Persist = spec.Persist || persistFlag
	applyConfigDefaults(&spec, app.Config)

	orch, validation, err := orchestrator.New(spec, app.Registry, app.Logger)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), validation.String())
		return fmt.Errorf("job spec rejected: %w", err)
	}
	if len(validation.Warnings) > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), validation.String())
	}
	orch.SetConcurrency(app.Config.Defaults.Concurrency)

	result, runErr := orch.Run(cmd.Context())

	if spec.Persist {
		if s, openErr := openStoreIfEnabled(app); openErr == nil && s != nil {
			defer s.Close()
			saveErr := lock.WithLock(app.Config.Store.DBPath, func() error {
				return s.SaveJobResult(context.Background(), result)
			})
			if saveErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to persist job result: %v\n", saveErr)
			}
		} else if openErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to open result store: %v\n", openErr)
		}
	}

	markdown := report.Markdown(result)
	if outputPath == "" {
		fmt.Fprintln(cmd.OutOrStdout(), markdown)
	} else if err := os.WriteFile(outputPath, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}

	if htmlOutputPath != "" {
		html, err := report.HTML(result)
		if err != nil {
			return fmt.Errorf("render html report: %w", err)
		}
		if err := os.WriteFile(htmlOutputPath, []byte(html), 0o644); err != nil {
			return fmt.Errorf("write html report: %w", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("job did not succeed: %w", runErr)
	}
	if result.Status != model.JobSucceeded {
		return fmt.Errorf("job finished with status %s", result.Status)
	}
	return nil
}
