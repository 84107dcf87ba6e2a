// Command orchestrator runs the Tesslate Studio orchestration core: the
// control-plane HTTP API, the idle-environment reaper, and (in the default
// local-engine deployment) the Docker-backed Substrate Driver.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information, set via -ldflags at build time.
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "orchestrator",
	Short:   "Tesslate Studio orchestration core",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"orchestrator version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config override file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
