package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackdock/stackdock/pkg/config"
	"github.com/stackdock/stackdock/pkg/discovery"
	"github.com/stackdock/stackdock/pkg/events"
	"github.com/stackdock/stackdock/pkg/executor"
	"github.com/stackdock/stackdock/pkg/log"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List compose projects on this host",
	Long: `One-shot discovery: lists every compose project Docker reports plus any
compose files found in the configured stacks directories.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return listProjects(configPath)
	},
}

func init() {
	projectsCmd.Flags().StringP("config", "c", "", "Path to config file")
}

func listProjects(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// CLI output goes to stdout; keep log noise out of it.
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: false, Output: os.Stderr})

	var execOpts []executor.Option
	if cfg.DockerBinary != "" {
		execOpts = append(execOpts, executor.WithBinary(cfg.DockerBinary))
	}
	runner := executor.New(execOpts...)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	disc := discovery.NewService(runner, discovery.NewCache(), broker,
		discovery.WithCommandTimeout(cfg.CommandTimeout.Std()),
		discovery.WithConcurrency(cfg.DiscoveryConcurrency),
		discovery.WithStacksDirs(cfg.StacksDirs),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	projects, err := disc.ListProjects(ctx, nil)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tSERVICES\tCOMPOSE FILE")
	for _, p := range projects {
		file := p.ComposeFilePath
		if file == "" {
			file = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.Name, p.State, len(p.Services), file)
	}
	return w.Flush()
}
