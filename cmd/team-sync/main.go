// Package main is the entry point for the team-sync CLI.
//
// team-sync converges a declared set of teams (a YAML manifest) onto a
// Keycloak realm's group tree: groups, parent/child relationships, and
// membership.
//
// Commands: sync, plan, validate.
//
// For detailed usage information, run:
//
//	team-sync --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/infiotinc/team-sync/cmd/team-sync/commands"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
