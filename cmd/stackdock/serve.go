package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	dockerclient "github.com/docker/docker/client"
	"github.com/spf13/cobra"

	"github.com/stackdock/stackdock/pkg/api"
	"github.com/stackdock/stackdock/pkg/bridge"
	"github.com/stackdock/stackdock/pkg/config"
	"github.com/stackdock/stackdock/pkg/discovery"
	"github.com/stackdock/stackdock/pkg/events"
	"github.com/stackdock/stackdock/pkg/executor"
	"github.com/stackdock/stackdock/pkg/health"
	"github.com/stackdock/stackdock/pkg/log"
	"github.com/stackdock/stackdock/pkg/operations"
	"github.com/stackdock/stackdock/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine and serve the dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return serve(configPath)
	},
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "Path to config file (defaults apply without one)")
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.Format == "json",
	})
	logger := log.WithComponent("serve")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- shared executor ---
	var execOpts []executor.Option
	if cfg.DockerBinary != "" {
		execOpts = append(execOpts, executor.WithBinary(cfg.DockerBinary))
	}
	runner := executor.New(execOpts...)

	// --- events ---
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	// --- discovery ---
	cache := discovery.NewCache(discovery.WithTTL(cfg.CacheTTL.Std()))
	disc := discovery.NewService(runner, cache, broker,
		discovery.WithCommandTimeout(cfg.CommandTimeout.Std()),
		discovery.WithConcurrency(cfg.DiscoveryConcurrency),
		discovery.WithStacksDirs(cfg.StacksDirs),
	)

	poller := discovery.NewPoller(disc, cfg.PollInterval.Std())
	poller.Start()
	defer poller.Stop()

	// --- operation audit log ---
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.OperationRetention.Std() > 0 {
		if pruned, err := store.Prune(time.Now().Add(-cfg.OperationRetention.Std())); err != nil {
			logger.Warn().Err(err).Msg("audit log prune failed")
		} else if pruned > 0 {
			logger.Info().Int("pruned", pruned).Msg("pruned old operation records")
		}
	}

	// --- operations ---
	ops := operations.NewService(runner, disc, broker,
		operations.WithTimeout(cfg.OperationTimeout.Std()),
		operations.WithSink(store),
	)

	// --- event bridge ---
	eventBridge := bridge.NewBridge(disc, broker, ops.Busy,
		bridge.WithDedupWindow(cfg.DedupWindow.Std()),
		bridge.WithDebounceWindow(cfg.DebounceWindow.Std()),
	)
	defer eventBridge.Stop()

	docker, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		// Without the event stream the poller still keeps state fresh,
		// just on its own cadence.
		logger.Warn().Err(err).Msg("docker client unavailable, running without event stream")
	} else {
		defer docker.Close()
		listener := bridge.NewListener(docker, eventBridge, disc, broker)
		listener.Start(ctx)
		defer listener.Stop()
	}

	// --- HTTP API ---
	checker := health.NewDaemonChecker(runner)
	server := api.NewServer(disc, ops,
		api.WithOperationLog(store),
		api.WithHealthChecker(checker),
		api.WithEventRelay(api.NewEventRelay(broker)),
		api.WithVersion(Version),
	)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	logger.Info().Str("addr", cfg.ListenAddr).Str("version", Version).Msg("stackdock started")
	return server.ListenAndServe(ctx, cfg.ListenAddr)
}
