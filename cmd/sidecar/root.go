package main

import (
	"github.com/spf13/cobra"
)

// rootFlags holds the persistent flags every subcommand shares, following
// caddy's cmd/caddy pattern of a root command carrying --config and
// process-wide flags that subcommands read off the parsed *cobra.Command.
type rootFlags struct {
	configPath string
	logLevel   string
}

// newRootCommand builds the sidecar root command: a persistent --config
// and --log-level, plus the run and check-config subcommands.
func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "sidecar",
		Short: "A transparent, identity-aware mesh sidecar proxy",
		Long: `sidecar is a transparent L4/L7 mesh proxy: it accepts connections on
behalf of a local application, resolves routes and endpoints from a
control plane, balances and retries traffic to them, and terminates or
originates mTLS at the mesh boundary.

Use 'sidecar run' to start the proxy in the foreground, or
'sidecar check-config' to validate a configuration file without binding
any listeners.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "sidecar.yaml", "path to the sidecar YAML configuration")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(newRunCommand(flags))
	root.AddCommand(newCheckConfigCommand(flags))
	return root
}
