package commands

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/openhoist/openhoist/pkg/engine"
)

func newApplyCommand() *cobra.Command {
	var (
		flags       deployFlags
		autoApprove bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Deploy the stack",
		Long: `Deploy the stack described by the manifest.

This command:
  - Previews the stack and shows the resource plan
  - Prompts for approval (unless --auto-approve)
  - Declares every resource and runs the gated side effects
  - Publishes assets with the resolved endpoint substituted in
  - Converges firewall rules with the host's outbound addresses
  - Records the run, its exports, and published objects in the state database`,
		Example: `  # Apply with approval prompt
  hoist apply -f stack.yaml

  # Auto-approve
  hoist apply -f stack.cue --auto-approve

  # Apply against a provider plugin with metrics exposed
  hoist apply --plugin ./plugins/azure.yaml --metrics-listen :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, flags)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			orch, err := rt.orchestrator(engine.ModeApply)
			if err != nil {
				return err
			}

			graph, err := orch.Graph()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Plan:")
			fmt.Fprint(cmd.OutOrStdout(), graph.Render())

			if !autoApprove {
				ok, err := confirm(cmd)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Apply cancelled.")
					return nil
				}
			}

			rt.metrics.RecordDeploymentStarted(string(engine.ModeApply))
			started := time.Now()
			result, err := orch.Deploy(ctx)
			if err != nil {
				rt.metrics.RecordDeploymentCompleted(string(engine.ModeApply), "failed", time.Since(started))
				return err
			}
			rt.metrics.RecordDeploymentCompleted(string(engine.ModeApply), "succeeded", result.Duration)

			if jsonOutput {
				return printJSON(cmd, result)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nApplied in %s: %d asset(s) published, %d firewall rule(s) in place\n",
				result.Duration.Round(time.Millisecond), len(result.Objects), len(result.Rules))
			printExports(cmd, result.Exports)
			if result.DeploymentID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\nDeployment ID: %s\n", result.DeploymentID)
			}
			return nil
		},
	}

	registerDeployFlags(cmd, &flags)
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip approval prompt")

	return cmd
}

// confirm asks for an interactive yes before side effects run.
func confirm(cmd *cobra.Command) (bool, error) {
	fmt.Fprint(cmd.OutOrStdout(), "\nProceed with apply? Only 'yes' is accepted: ")
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading approval: %w", err)
	}
	return strings.TrimSpace(line) == "yes", nil
}
