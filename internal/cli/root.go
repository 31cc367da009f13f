// Package cli implements the tap-clover command line.
package cli

import (
	"github.com/spf13/cobra"
)

type options struct {
	configPath     string
	statePath      string
	catalogPath    string
	discover       bool
	docs           bool
	selected       []string
	recordRequests string
	logLevel       string
}

// NewRootCmd creates the tap-clover command. Singer messages are written to the
// command's output, logs to stderr.
func NewRootCmd() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "tap-clover",
		Short: "Singer tap for the Clover POS API",
		Long: `tap-clover extracts merchants, orders, payments, inventory and the other
Clover REST resources and writes them to stdout as Singer SCHEMA, RECORD and STATE messages.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to the JSON config file")
	flags.StringVarP(&opts.statePath, "state", "s", "", "Path to a state file with bookmarks from a previous run")
	flags.StringVar(&opts.catalogPath, "catalog", "", "Path to a catalog file selecting the streams to sync")
	flags.BoolVarP(&opts.discover, "discover", "d", false, "Print the catalog of available streams and exit")
	flags.BoolVar(&opts.docs, "docs", false, "Print a CSV describing every stream and the configured field transforms, then exit")
	flags.StringSliceVar(&opts.selected, "select", nil, "Streams to sync, e.g. --select orders,order_line_items")
	flags.StringVar(&opts.recordRequests, "record-requests", "", "Directory to record every HTTP exchange to")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	return rootCmd
}
