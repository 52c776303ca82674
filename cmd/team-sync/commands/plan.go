package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/infiotinc/team-sync/internal/manifest"
	"github.com/infiotinc/team-sync/internal/sync"
)

// Plan returns the command that previews a sync without mutating the realm.
func Plan() *cobra.Command {
	var (
		teamsPath  string
		configPath string
		prefix     string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what sync would change without touching the realm",
		Long: `Compare the teams manifest against the Keycloak realm and print the
pending changes: groups to create or rebuild, and members to add or remove.
The realm is only read, never written.

Examples:
  # Preview changes for teams.yaml
  team-sync plan

  # Preview a specific manifest
  team-sync plan --teams people/teams.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlan(cmd, teamsPath, configPath, prefix)
		},
	}

	cmd.Flags().StringVar(&teamsPath, "teams", "teams.yaml", "Path to the teams manifest")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Prefix applied to every team name")

	return cmd
}

func runPlan(cmd *cobra.Command, teamsPath, configPath, prefix string) error {
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()

	cfg, err := loadConfig(ctx, logger, configPath, prefix)
	if err != nil {
		return err
	}

	teams, err := manifest.Load(teamsPath, cfg.TeamPrefix)
	if err != nil {
		return err
	}

	runner, err := buildRunner(cfg, logger)
	if err != nil {
		return err
	}

	plan, err := runner.Plan(ctx, teams)
	if err != nil {
		return err
	}

	printPlan(cmd, plan)
	return nil
}

func printPlan(cmd *cobra.Command, plan *sync.Plan) {
	out := cmd.OutOrStdout()

	for _, g := range plan.Groups {
		marker := "~"
		switch g.Action {
		case sync.ActionCreate:
			marker = "+"
		case sync.ActionRebuild:
			marker = "!"
		}

		line := fmt.Sprintf("%s %s (%s)", marker, g.Team, g.Key)
		if g.Parent != "" {
			line += fmt.Sprintf(" parent=%s", g.Parent)
		}
		if g.Action == sync.ActionRebuild {
			line += " [rebuild]"
		}
		fmt.Fprintln(out, line)

		for _, m := range g.Add {
			fmt.Fprintf(out, "    + %s\n", m)
		}
		for _, m := range g.Remove {
			fmt.Fprintf(out, "    - %s\n", m)
		}
	}

	if !plan.Changes() {
		fmt.Fprintln(out, "No changes. The realm matches the manifest.")
	}
}
