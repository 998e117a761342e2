package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openhoist/openhoist/pkg/stores"
)

func newExportsCommand() *cobra.Command {
	var stackName string

	cmd := &cobra.Command{
		Use:   "exports",
		Short: "Show the exports of the latest successful apply",
		Long: `Show the exported values recorded by the most recent successful
apply of a stack. Preview runs and failed applies are never consulted.`,
		Example: `  # Exports of the stack in the default manifest
  hoist exports

  # Exports of a named stack
  hoist exports --stack orders`,
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

			exports, err := state.LatestExports(ctx, name)
			if err != nil {
				return err
			}
			if len(exports) == 0 {
				return fmt.Errorf("no successful apply recorded for stack %q", name)
			}

			if jsonOutput {
				return printJSON(cmd, exports)
			}
			printExports(cmd, exports)
			return nil
		},
	}

	cmd.Flags().StringVar(&stackName, "stack", "", "stack name (default: from the manifest)")
	return cmd
}

// openReadOnlyState opens the state database for query commands.
func openReadOnlyState(ctx context.Context) (stores.Store, error) {
	if statePath == "" {
		return nil, fmt.Errorf("state persistence is disabled (--state is empty)")
	}
	state, err := stores.NewSQLiteStore(stores.Config{Path: statePath})
	if err != nil {
		return nil, err
	}
	if err := state.Init(ctx); err != nil {
		return nil, err
	}
	if err := state.Migrate(ctx); err != nil {
		state.Close()
		return nil, err
	}
	return state, nil
}

// resolveStackName returns the explicit name or falls back to the manifest.
func resolveStackName(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	manifest, err := loadManifestLax()
	if err != nil {
		return "", fmt.Errorf("no --stack given and manifest unreadable: %w", err)
	}
	return manifest.Stack, nil
}
