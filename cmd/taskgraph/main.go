// Package main provides the CLI entry point for the taskgraph
// orchestration engine.
package main

import (
	"fmt"
	"os"

	"github.com/rparedes/taskgraph/internal/cmd"
	"github.com/rparedes/taskgraph/internal/planner"
	"github.com/rparedes/taskgraph/internal/registry"
)

// Version is the current version of the taskgraph binary, injected at
// build time via -ldflags.
var Version = "dev"

func main() {
	reg := registry.New()

	client := planner.NewSubprocessClient("claude")
	p := planner.New(client, reg)
	if err := reg.Register(p.Definition()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to register ai/orchestrate: %v\n", err)
		os.Exit(1)
	}

	cmd.Version = Version
	root := cmd.NewRootCommand(reg)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
