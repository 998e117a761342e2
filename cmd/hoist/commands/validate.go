package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openhoist/openhoist/pkg/config"
	"github.com/openhoist/openhoist/pkg/policy"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [manifest]",
		Short: "Validate a stack manifest",
		Long: `Validate a stack manifest and any additional policies without
deploying anything.

This command checks:
  - CUE or YAML syntax validity
  - Schema conformance (required fields, signing TTL cap)
  - Rewrite script syntax, when configured
  - That every policy in --policy-dir compiles`,
		Example: `  # Validate the default manifest
  hoist validate

  # Validate a specific manifest and policy directory
  hoist validate stack.cue --policy-dir ./policies`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := manifestPath
			if len(args) > 0 {
				path = args[0]
			}

			loader := config.NewLoader()
			manifest, err := loader.Load(path)
			if err != nil {
				return err
			}
			if err := loader.Validate(manifest); err != nil {
				return err
			}

			if manifest.Site.RewriteScript != "" {
				if _, err := config.LoadRewriteHook(manifest.Site.RewriteScript, config.DefaultRewriteTimeout); err != nil {
					return fmt.Errorf("rewrite script: %w", err)
				}
			}

			if policyDir != "" {
				engine, err := policy.NewEngine(zerolog.Nop())
				if err != nil {
					return err
				}
				policies, err := policy.NewLoader(zerolog.Nop()).LoadDir(policyDir)
				if err != nil {
					return err
				}
				if err := engine.AddPolicies(cmd.Context(), policies); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d policie(s) compiled\n", len(policies))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: stack %q is valid\n", path, manifest.Stack)
			return nil
		},
	}

	return cmd
}
