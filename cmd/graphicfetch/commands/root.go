// Package commands implements the graphicfetch CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "graphicfetch",
	Short: "Fetch, decode and cache images",
	Long: `graphicfetch downloads images over HTTP, decodes still and animated
formats, and keeps them in a memory cache backed by a persistent store
(local files, Redis or Cloud Storage). Concurrent requests for the same
URL share one download.

Configuration comes from defaults, an optional YAML file and
GRAPHICFETCH_<SECTION>_<KEY> environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or $XDG_CONFIG_HOME/graphicfetch/config.yaml)")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("graphicfetch %s\n", Version)
	},
}
