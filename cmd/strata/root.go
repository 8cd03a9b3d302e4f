package main

import (
	"github.com/spf13/cobra"
)

const (
	configFlag = "config"
	rootFlag   = "root"
	storeFlag  = "store"
	jsonFlag   = "json"
)

// globalOptions are the persistent flags shared by every sub-command.
type globalOptions struct {
	configDir string
	root      string
	store     string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "strata [sub-command]",
		Short: "Inspect a strata application container",
		Long: `strata loads the application configuration, boots the runtime and
reports what the container can resolve: entry types, the names available
for a type and the value behind a specifier.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configDir, configFlag, "", "directory holding config.yaml (defaults to $CONFIG_PATH or ./config)")
	flags.StringVar(&opts.root, rootFlag, "", "application root searched for entries, overrides the configured root")
	flags.StringVar(&opts.store, storeFlag, "", "record store driver (memory, redis or sql), overrides the configured driver")

	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newShowCommand(opts))
	cmd.AddCommand(newVersionCommand())
	return cmd
}
