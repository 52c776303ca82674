package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/infiotinc/team-sync/internal/manifest"
	"github.com/infiotinc/team-sync/internal/sync"
)

// Validate returns the command that checks a manifest without any realm
// access: YAML shape, member uniqueness, parent references, and parent
// cycles.
func Validate() *cobra.Command {
	var (
		teamsPath string
		prefix    string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the teams manifest offline",
		Long: `Parse and validate the teams manifest without contacting Keycloak.

Checks YAML shape, duplicate members, parent references, and cycles in the
parent graph, then prints the order a sync would reconcile the groups in.

Examples:
  # Validate teams.yaml in the current directory
  team-sync validate

  # Validate with the prefix the sync would apply
  team-sync validate --teams people/teams.yaml --prefix ACME`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, teamsPath, prefix)
		},
	}

	cmd.Flags().StringVar(&teamsPath, "teams", "teams.yaml", "Path to the teams manifest")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Prefix applied to every team name")

	return cmd
}

func runValidate(cmd *cobra.Command, teamsPath, prefix string) error {
	teams, err := manifest.Load(teamsPath, prefix)
	if err != nil {
		return err
	}

	ordered, err := sync.Order(teams)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d teams, %d to sync\n", teamsPath, len(teams), len(ordered))
	for _, team := range ordered {
		if team.Parent != "" {
			fmt.Fprintf(out, "  %s (%s) parent=%s\n", team.Name, team.Key, team.Parent)
			continue
		}
		fmt.Fprintf(out, "  %s (%s)\n", team.Name, team.Key)
	}
	return nil
}
