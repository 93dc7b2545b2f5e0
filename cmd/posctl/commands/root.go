// Package commands implements posctl, the operator tool for inspecting and
// draining a register's offline queue.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/jrjohn/arcana-pos-go/internal/cli/output"
)

// Version information injected at build time
var (
	Version = "dev"
	Commit  = "none"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	output     string
	verbose    bool
}

func (f *globalFlags) format() (output.Format, error) {
	return output.ParseFormat(f.output)
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "posctl",
		Short: "Arcana POS offline queue control",
		Long: `posctl inspects and drains the offline request queue of a register.

It opens the configured store directly. With the badger driver the agent
must be stopped first, since badger allows a single process at a time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (default search: ., ./config, /etc/arcana-pos)")
	root.PersistentFlags().StringVarP(&flags.output, "output", "o", "table", "output format (table|json|yaml)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log to stderr at debug level")

	root.AddCommand(
		newQueueCmd(flags),
		newSyncCmd(flags),
		newStatusCmd(flags),
		newVersionCmd(),
	)
	root.CompletionOptions.DisableDefaultCmd = true

	return root
}
