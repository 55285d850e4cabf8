package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/softsim/config"
	"github.com/pthm-cable/softsim/scene"
	"github.com/pthm-cable/softsim/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	statsWindow := flag.Int("stats-window", 0, "Stats window size in frames (0 = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, config and snapshots (empty = use config)")
	seed := flag.Int64("seed", 0, "RNG seed for wind and ball pits (0 = use config)")
	frames := flag.Int("frames", -1, "Stop after N frames (0 = until interrupted, -1 = use config)")
	projection := flag.String("projection", "", "Constraint projection: gauss_seidel, colored, jacobi (empty = use config)")
	spawn := flag.Int("spawn", 0, "Extra soft bodies to drop above the first one")
	squashAt := flag.Int("squash-at", 0, "Squash soft bodies onto the floor at this frame (0 = never)")
	restore := flag.String("restore", "", "Snapshot file to resume from")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// CLI overrides
	if *statsWindow > 0 {
		cfg.Telemetry.StatsWindow = *statsWindow
	}
	if *outputDir != "" {
		cfg.Telemetry.OutputDir = *outputDir
	}
	if *seed != 0 {
		cfg.Sim.Seed = *seed
	}
	if *frames >= 0 {
		cfg.Sim.Frames = *frames
	}
	if *projection != "" {
		cfg.Solver.Projection = *projection
	}

	if err := run(cfg, logger, *logStats, *spawn, *squashAt, *restore); err != nil {
		slog.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, logStats bool, spawn, squashAt int, restore string) error {
	output, err := telemetry.NewOutputManager(cfg.Telemetry.OutputDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := output.Close(); err != nil {
			logger.Error("failed to close output", "error", err)
		}
	}()
	if err := output.WriteConfig(cfg); err != nil {
		return err
	}

	s, err := scene.New(cfg, scene.Options{
		Logger:   logger,
		LogStats: logStats,
		Output:   output,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	for i := range spawn {
		if _, err := s.AddSoftBody(mgl32.Vec3{0, 0.6 * float32(i+1), 0}); err != nil {
			return err
		}
	}

	if restore != "" {
		snap, err := telemetry.LoadSnapshot(restore)
		if err != nil {
			return err
		}
		if err := s.Restore(snap); err != nil {
			return err
		}
		logger.Info("snapshot restored", "path", restore, "frame", snap.Frame)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("starting headless simulation",
		"seed", cfg.Sim.Seed,
		"frames", cfg.Sim.Frames,
		"bodies", s.NumBodies(),
		"output_dir", output.Dir(),
	)

	start := time.Now()
	for ctx.Err() == nil {
		if squashAt > 0 && int(s.Frame()) == squashAt {
			s.Squash()
			logger.Info("squashed soft bodies", "frame", s.Frame())
		}

		s.Step()

		if n := cfg.Telemetry.LogInterval; n > 0 && int(s.Frame())%n == 0 {
			perf := s.PerfStats()
			logger.Info("progress",
				"frame", s.Frame(),
				"sim_time", s.Time(),
				"realtime", perf.RealtimeFactor,
			)
		}

		if cfg.Sim.Frames > 0 && int(s.Frame()) >= cfg.Sim.Frames {
			logger.Info("max frames reached", "frame", s.Frame())
			break
		}
	}

	logger.Info("simulation finished",
		"frame", s.Frame(),
		"sim_time", s.Time(),
		"wall_time", time.Since(start).Round(time.Millisecond).String(),
	)
	return nil
}
