// Vectorindex serves and queries a vector similarity index.
//
// Usage:
//
//	# Start the HTTP server
//	vectorindex serve --config ~/.config/vectorindex/config.yaml
//
//	# Query from the command line
//	vectorindex search "cats on mats" -n 5
//
// Configuration is read from the YAML file given by --config and from
// VECTORINDEX_* environment variables. See internal/config for details.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globals holds the persistent flags.
type globals struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "vectorindex",
		Short: "Vector similarity search over SQLite or Qdrant",
		Long: `vectorindex stores embeddings with JSON metadata and ranks them by vector,
lexical or hybrid similarity, with filters evaluated before or after ranking.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to config.yaml (default: user config dir)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override logging.level (trace, debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(g),
		newSearchCmd(g, false),
		newSearchCmd(g, true),
		newAddCmd(g),
		newGetCmd(g),
		newDeleteCmd(g),
		newIndexCmd(g),
		newConfigCmd(g),
	)
	return root
}
