package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stackdock",
	Short: "Stackdock - Compose project dashboard engine",
	Long: `Stackdock discovers Docker Compose projects on this host and lets an
admin dashboard inspect and operate them: up, down, restart, logs, with
live state pushed over the Docker event stream.

The Docker daemon stays the single source of truth; Stackdock never keeps
its own model of what should be running.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Stackdock version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(projectsCmd)
}
