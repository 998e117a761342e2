package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newDeploymentsCommand() *cobra.Command {
	var (
		stackName string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "deployments",
		Short: "List recorded deployment runs",
		Long: `List recent preview and apply runs of a stack, newest first,
with their status and timing.`,
		Example: `  # Last runs of the manifest's stack
  hoist deployments

  # Last 50 runs of a named stack
  hoist deployments --stack orders --limit 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			state, err := openReadOnlyState(ctx)
			if err != nil {
				return err
			}
			defer state.Close()

			name, err := resolveStackName(stackName)
			if err != nil {
				return err
			}

			runs, err := state.ListDeployments(ctx, name, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no runs recorded for stack %q\n", name)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMODE\tSTATUS\tSTARTED\tDURATION")
			for _, run := range runs {
				duration := "-"
				if run.CompletedAt != nil {
					duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					run.ID, run.Mode, run.Status,
					run.StartedAt.Format(time.RFC3339), duration)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&stackName, "stack", "", "stack name (default: from the manifest)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}
