package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	manifestPath string
	statePath    string
	policyDir    string
	pluginPath   string
	logLevel     string
	logFormat    string
	jsonOutput   bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hoist",
		Short: "OpenHoist - Deferred-Value Stack Provisioner",
		Long: `OpenHoist provisions a cloud application stack from a declarative manifest.

Resources are declared as deferred values and composed into a dependency
graph; side effects run only in apply mode, so a preview walks the exact
same graph without touching anything.

Features:
  - Typed manifests via CUE or YAML
  - Preview/apply gate over every side effect
  - WASM-based provider plugins
  - Asset publishing with signed URLs and Starlark rewrite hooks
  - Firewall rule synthesis from platform-assigned addresses
  - Policy enforcement (OPA/rego)`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "f", "stack.yaml", "stack manifest path (.cue, .yaml)")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", ".hoist/state.db", "state database path (empty disables persistence)")
	rootCmd.PersistentFlags().StringVar(&policyDir, "policy-dir", "", "directory of additional rego policies")
	rootCmd.PersistentFlags().StringVar(&pluginPath, "plugin", "", "provider plugin manifest (default: built-in simulator)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newPreviewCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newExportsCommand())
	rootCmd.AddCommand(newDeploymentsCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}

func newVersionCommand(version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hoist %s\ncommit: %s\nbuilt:  %s\n", version, commit, buildDate)
		},
	}
}
