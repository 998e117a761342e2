package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openhoist/openhoist/pkg/engine"
)

func newPreviewCommand() *cobra.Command {
	var flags deployFlags

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Simulate a deployment without side effects",
		Long: `Build and resolve the full resource graph without executing any
side effect.

The preview walks exactly the graph an apply would: resources are declared,
deferred values are composed, firewall rules are expanded, assets are
enumerated and rewritten. Uploads, rule writes, and subprocess queries are
skipped; their results come back as placeholders.`,
		Example: `  # Preview the stack in ./stack.yaml
  hoist preview

  # Preview a CUE manifest with extra policies
  hoist preview -f stack.cue --policy-dir ./policies`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, flags)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			orch, err := rt.orchestrator(engine.ModePreview)
			if err != nil {
				return err
			}

			result, err := orch.Deploy(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, result)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Plan:")
			fmt.Fprint(cmd.OutOrStdout(), result.Graph.Render())
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d firewall rule(s), %d asset(s), %d export(s)\n",
				len(result.Rules), len(result.Objects), len(result.Exports))
			printExports(cmd, result.Exports)
			fmt.Fprintln(cmd.OutOrStdout(), "\nPreview only. Run 'hoist apply' to execute.")
			return nil
		},
	}

	registerDeployFlags(cmd, &flags)
	return cmd
}
