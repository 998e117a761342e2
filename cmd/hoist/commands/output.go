package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openhoist/openhoist/pkg/config"
	"github.com/openhoist/openhoist/pkg/engine"
)

// registerDeployFlags adds the flags preview and apply share.
func registerDeployFlags(cmd *cobra.Command, f *deployFlags) {
	cmd.Flags().StringVar(&f.metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address")
	cmd.Flags().StringVar(&f.otlpEndpoint, "otlp-endpoint", "", "export traces to this OTLP gRPC endpoint")
	cmd.Flags().StringVar(&f.sftpHost, "sftp-host", "", "publish assets to this SFTP host instead of the in-process store")
	cmd.Flags().StringVar(&f.sftpUser, "sftp-user", "", "SFTP login user")
	cmd.Flags().StringVar(&f.sftpKey, "sftp-key", "", "SFTP private key path")
	cmd.Flags().StringVar(&f.sftpRoot, "sftp-root", "", "remote directory assets are written under")
	cmd.Flags().StringVar(&f.sftpBaseURL, "sftp-base-url", "", "public base URL of the SFTP-served container")
	cmd.Flags().StringVar(&f.sftpKnownHost, "sftp-known-hosts", "", "known_hosts file for host key verification")
}

// printJSON writes v as indented JSON to the command's stdout.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printExports renders the export table.
func printExports(cmd *cobra.Command, exports []engine.Export) {
	if len(exports) == 0 {
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\nExports:")
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, e := range exports {
		fmt.Fprintf(w, "  %s\t%s\n", e.Name, e.Value)
	}
	w.Flush()
}

// loadManifestLax loads the manifest for commands that only need its
// identity, skipping semantic validation.
func loadManifestLax() (*config.Manifest, error) {
	return config.NewLoader().Load(manifestPath)
}
