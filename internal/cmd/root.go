// Package cmd wires the cobra command tree: submit, validate, and
// registry. Settings come from the config file named by --config,
// merged over the built-in defaults, with TASKGRAPH_* environment
// variables applied on top.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rparedes/taskgraph/internal/config"
	"github.com/rparedes/taskgraph/internal/logger"
	"github.com/rparedes/taskgraph/internal/registry"
	"github.com/rparedes/taskgraph/internal/store"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

// App bundles the dependencies every subcommand needs: the capability
// registry, loaded configuration, and console logger. Built by the
// buildApp closure that NewRootCommand hands to each subcommand, when
// that subcommand runs, the way the teacher's cmd package threads its
// own config and registry.
type App struct {
	Registry *registry.Registry
	Config   *config.Config
	Logger   *logger.ConsoleLogger
}

// NewRootCommand builds the root cobra command. reg should already
// have every (service, command) handler registered, including the
// AI planner's ai/orchestrate definition, before this is called.
func NewRootCommand(reg *registry.Registry) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:     "taskgraph",
		Short:   "Dynamic DAG job orchestration engine",
		Version: Version,
		Long: `taskgraph executes job specifications as a dependency graph of
tasks, dispatching each task to a registered service/command handler
and dynamically extending the graph as handlers spawn child tasks.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default .taskgraph/config.yaml)")

	buildApp := func() (*App, error) {
		path := configPath
		if path == "" {
			path = ".taskgraph/config.yaml"
		}
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return &App{
			Registry: reg,
			Config:   cfg,
			Logger:   logger.New(os.Stderr, cfg.Logging.Level),
		}, nil
	}

	root.AddCommand(newSubmitCommand(buildApp))
	root.AddCommand(newValidateCommand(buildApp))
	root.AddCommand(newRegistryCommand(buildApp))

	return root
}

func openStoreIfEnabled(app *App) (*store.Store, error) {
	if !app.Config.Store.Enabled {
		return nil, nil
	}
	return store.Open(app.Config.Store.DBPath)
}
