package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newRegistryCommand(buildApp func() (*App, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "registry",
		Short:        "List the registered service/command handlers",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			return runRegistry(cmd, app)
		},
	}
	return cmd
}

func runRegistry(cmd *cobra.Command, app *App) error {
	out := cmd.OutOrStdout()
	for _, entry := range app.Registry.Catalog() {
		fmt.Fprintf(out, "%s/%s", entry.Service, entry.Command)
		if entry.AllowInPlanMode {
			fmt.Fprint(out, " (plan-mode)")
		}
		fmt.Fprintln(out)
		if entry.Description != "" {
			fmt.Fprintf(out, "    %s\n", entry.Description)
		}
		if len(entry.RequiredParams) > 0 {
			fmt.Fprintf(out, "    required: %s\n", strings.Join(entry.RequiredParams, ", "))
		}
		if len(entry.OptionalParams) > 0 {
			fmt.Fprintf(out, "    optional: %s\n", strings.Join(entry.OptionalParams, ", "))
		}
	}
	return nil
}
