// Package main provides the bot entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	zlog "github.com/rs/zerolog/log"

	"github.com/rudebot/rudebot/internal/cache"
	"github.com/rudebot/rudebot/internal/config"
	"github.com/rudebot/rudebot/internal/handlers"
	"github.com/rudebot/rudebot/internal/logger"
	"github.com/rudebot/rudebot/internal/metrics"
	"github.com/rudebot/rudebot/internal/repository"
)

var (
	app     = kingpin.New("rudebot", "Discord music bot")
	verbose = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile = app.Flag("logfile", "Path to log file (default: stdout)").String()
	envFile = app.Flag("env-file", "Path to a .env file").Default(".env").String()

	startCmd = app.Command("start", "Run the bot (default)").Default()
	sweepCmd = app.Command("sweep", "Delete unreferenced audio files once and exit")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Missing .env is fine; the environment may already be set.
	_ = godotenv.Load(*envFile)

	logCfg := logger.Config{Level: "info", File: *logfile}
	if *verbose {
		logCfg.Level = "debug"
	}
	closer, err := logger.Init(logCfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	cfg, err := config.LoadConfig()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch command {
	case sweepCmd.FullCommand():
		err = sweep(ctx, cfg)
	case startCmd.FullCommand():
		err = run(ctx, cfg)
	}
	if err != nil {
		zlog.Error().Err(err).Msg("exiting")
		closer.Close()
		os.Exit(1)
	}
}

func openStore(cfg *config.Config) (*repository.Repo, *cache.ResourceDir, error) {
	db, err := repository.OpenDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	dir, err := cache.NewResourceDir(cfg.ResourceDir)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return repository.NewRepo(db), dir, nil
}

// run starts the bot and its background loops. Defers run on every return path.
func run(ctx context.Context, cfg *config.Config) error {
	repo, dir, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
				zlog.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	// SWEEP_INTERVAL=0 still sweeps once at startup.
	go cache.NewSweeper(dir, repo, cfg.SweepGrace, cfg.StaleTempAfter, m).Run(ctx, cfg.SweepInterval)

	zlog.Info().Str("dataDir", cfg.DataDir).Str("resourceDir", dir.Root()).Msg("starting bot")
	return handlers.NewBot(cfg, repo, dir, m).Run(ctx)
}

func sweep(ctx context.Context, cfg *config.Config) error {
	repo, dir, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	res, err := cache.NewSweeper(dir, repo, cfg.SweepGrace, cfg.StaleTempAfter, nil).Sweep(ctx)
	if err != nil {
		return err
	}
	zlog.Info().Int("removed", len(res.Removed)).Int("kept", res.Kept).Msg("sweep finished")
	return nil
}
