package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"coronalmap/internal/logger"
	"coronalmap/pkg/config"
	"coronalmap/pkg/pipeline"
	"coronalmap/pkg/profile"
	"coronalmap/pkg/retrieve"
	"coronalmap/pkg/store"
)

var Version = "0.1.0"

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "coronalmap.yaml", "Path to the YAML configuration file")
	initConfig := flag.String("init-config", "", "Write a default configuration file to this path and exit")
	mode := flag.String("mode", "detect", "Mode: detect, batch or profile")
	rotation := flag.Int("rotation", 0, "Carrington rotation to process in detect mode")
	start := flag.Int("start", 0, "First Carrington rotation of a batch or profile range")
	end := flag.Int("end", 0, "Last Carrington rotation of a batch or profile range")
	force := flag.Bool("force", false, "Recompute rotations whose artifacts already exist")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *initConfig != "" {
		if err := config.CreateDefaultConfigFile(*initConfig); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *initConfig)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *verbose {
		cfg.Processing.Verbose = true
	}

	level := zerolog.InfoLevel
	if cfg.Processing.Verbose {
		level = zerolog.DebugLevel
	}
	lg := logger.NewConsole(level)

	fmt.Println("================================")
	fmt.Printf("CORONAL HOLE MAPS v%s\n", Version)
	fmt.Println("Minimum-intensity EUV synoptic maps with magnetic validation")
	fmt.Println("================================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.Paths.OutDir)
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to open output store")
	}

	startTime := time.Now()
	switch *mode {
	case "detect":
		if *rotation <= 0 {
			flag.Usage()
			os.Exit(1)
		}
		runner := newRunner(cfg, st, lg, *force)
		report := runner.ProcessRotation(ctx, *rotation)
		printReports([]pipeline.RotationReport{report})
		if report.Err != nil {
			os.Exit(1)
		}

	case "batch":
		if *start <= 0 || *end < *start {
			flag.Usage()
			os.Exit(1)
		}
		runner := newRunner(cfg, st, lg, *force)
		reports, err := runner.Run(ctx, *start, *end)
		if err != nil {
			lg.Fatal().Err(err).Msg("batch failed")
		}
		printReports(reports)

	case "profile":
		if *start <= 0 || *end < *start {
			flag.Usage()
			os.Exit(1)
		}
		if err := runProfiles(ctx, cfg, st, lg, *start, *end); err != nil {
			lg.Fatal().Err(err).Msg("profile aggregation failed")
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		flag.Usage()
		os.Exit(1)
	}

	fmt.Printf("\nCompleted in %.2f seconds\n", time.Since(startTime).Seconds())
}

func newRunner(cfg *config.Config, st *store.Store, lg zerolog.Logger, force bool) *pipeline.Runner {
	source := retrieve.NewDirSource(cfg.Paths.DataDir, logger.Component(lg, "retrieve"))
	detector := pipeline.NewDetector(cfg, source, logger.Component(lg, "detector"))
	runner := pipeline.NewRunner(cfg, detector, st, logger.Component(lg, "runner"))
	runner.Force = force
	return runner
}

func runProfiles(ctx context.Context, cfg *config.Config, st *store.Store, lg zerolog.Logger, cr0, cr1 int) error {
	agg := profile.NewAggregator(st, cfg.Paths.MagDir, cfg.Grid, logger.Component(lg, "profile"))
	p, err := agg.Aggregate(ctx, cr0, cr1)
	if err != nil {
		return err
	}

	path := profile.TablePath(cfg.Paths.OutDir, cr0, cr1)
	if err := profile.WriteTable(path, p); err != nil {
		return err
	}
	fmt.Printf("Profiles saved to: %s\n", path)

	if cfg.ClickHouse.Address == "" {
		return nil
	}
	exp, err := profile.NewExporter(ctx, cfg.ClickHouse.Address, cfg.ClickHouse.Database, cfg.ClickHouse.Table,
		logger.Component(lg, "clickhouse"))
	if err != nil {
		return err
	}
	defer exp.Close()
	if err := exp.EnsureTable(ctx); err != nil {
		return fmt.Errorf("failed to create profile table: %w", err)
	}
	return exp.Export(ctx, p)
}

func printReports(reports []pipeline.RotationReport) {
	fmt.Println("\nRotation summary:")
	fmt.Println("=================")
	for _, rep := range reports {
		switch {
		case rep.Err != nil:
			fmt.Printf("CR%d: failed: %v\n", rep.Rotation, rep.Err)
		case rep.Existing:
			fmt.Printf("CR%d: already processed\n", rep.Rotation)
		default:
			fmt.Printf("CR%d: %d regions, %d cells", rep.Rotation, rep.Regions, rep.Cells)
			if len(rep.Skipped) > 0 {
				fmt.Printf(" (skipped: %v)", rep.Skipped)
			}
			fmt.Printf(" in %.1fs\n", rep.Duration.Seconds())
		}
	}
}
