// The hlsloop command serves looping live HLS channels from static catalogs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agleyzer/hlsloop/internal/catalog"
	"github.com/agleyzer/hlsloop/internal/clock"
	"github.com/agleyzer/hlsloop/internal/cluster"
	"github.com/agleyzer/hlsloop/internal/config"
	"github.com/agleyzer/hlsloop/internal/logger"
	"github.com/agleyzer/hlsloop/internal/metrics"
	"github.com/agleyzer/hlsloop/internal/playlist"
	"github.com/agleyzer/hlsloop/internal/server"
	"github.com/agleyzer/hlsloop/internal/variant"
)

const (
	version = "1.0.0"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if cfg.ShowVersion {
		fmt.Printf("hlsloop v%s\n", version)
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level := cfg.LogLevel
	if cfg.Verbose {
		level = "debug"
	}
	log := logger.New(os.Stdout, level, cfg.LogFormat)

	log.Info("hlsloop starting", "version", version)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info("received signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("application error", "error", err)
		os.Exit(1)
	}

	log.Info("hlsloop stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := metrics.New()
	localEpoch := time.Now()

	var (
		epoch  clock.EpochSource = clock.Fixed(localEpoch)
		status server.StatusReporter
	)

	if cfg.Clustered() {
		manager, agreed, err := startCluster(ctx, cfg, localEpoch, log)
		if err != nil {
			return err
		}
		defer manager.Shutdown()

		// Serving starts only now, so clients never see a pre-agreement epoch
		epoch = clock.Fixed(agreed)
		status = manager
	}

	generator, err := newGenerator(cfg, clock.New(epoch, nil), log, m)
	if err != nil {
		return err
	}

	master, err := playlist.RenderMaster(variant.Default())
	if err != nil {
		return fmt.Errorf("render master playlist: %w", err)
	}

	srv := server.New(generator, server.Config{
		Port:        cfg.Port,
		ContentRoot: cfg.ContentRoot,
		Master:      master,
		Cluster:     status,
	}, log, m)

	log.Info("HLS channels ready",
		"master_url", fmt.Sprintf("http://localhost:%d/variant.m3u8", cfg.Port),
		"channel_url", fmt.Sprintf("http://localhost:%d/program0.m3u8", cfg.Port),
		"health", fmt.Sprintf("http://localhost:%d/health", cfg.Port),
		"catalogs", cfg.Layout().IndexPath(0),
		"window_size", cfg.WindowSize,
	)

	// Start server (blocks until shutdown)
	return srv.Start(ctx)
}

// newGenerator wires the catalog chain (loader, loop-after trim, cache) and
// the renderer into a playlist generator.
func newGenerator(cfg config.Config, clk *clock.Clock, log *slog.Logger, m *metrics.Metrics) (*playlist.Generator, error) {
	layout := cfg.Layout()

	var source catalog.Source = catalog.NewLoader(layout, log)
	if cfg.LoopAfter > 0 {
		log.Info("loop-after specified", "duration", cfg.LoopAfter)
		source = catalog.Limited{Source: source, Max: cfg.LoopAfter}
	}

	renderer := playlist.NewRenderer(layout, cfg.TargetDuration, cfg.Discontinuity)

	generator, err := playlist.NewGenerator(catalog.NewCache(source, m), clk, renderer, cfg.WindowSize, log, m)
	if err != nil {
		return nil, fmt.Errorf("create generator: %w", err)
	}
	return generator, nil
}

// startCluster joins the Raft cluster and blocks until the loop epoch is
// agreed or ctx is done. On error the manager is already shut down.
func startCluster(ctx context.Context, cfg config.Config, localEpoch time.Time, log *slog.Logger) (*cluster.Manager, time.Time, error) {
	manager, err := cluster.NewManager(cluster.Config{
		RaftID:   cfg.RaftID,
		BindAddr: cfg.RaftBind,
		Peers:    cfg.RaftPeers,
		Verbose:  cfg.Verbose,
	}, localEpoch, log)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("create cluster manager: %w", err)
	}

	if err := manager.Start(ctx); err != nil {
		return nil, time.Time{}, fmt.Errorf("start cluster: %w", err)
	}

	go func() {
		if err := manager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("epoch agreement stopped", "error", err)
		}
	}()

	log.Info("waiting for cluster epoch before serving", "peers", len(cfg.RaftPeers))

	agreed, err := manager.AgreedEpoch(ctx)
	if err != nil {
		manager.Shutdown()
		return nil, time.Time{}, fmt.Errorf("wait for cluster epoch: %w", err)
	}

	log.Info("cluster epoch agreed",
		"epoch", agreed.UTC(),
		"local_epoch", localEpoch.UTC(),
	)

	return manager, agreed, nil
}
