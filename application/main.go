package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Markfds01/shine-switchpoints/internal/config"
	"github.com/Markfds01/shine-switchpoints/internal/dataset"
	"github.com/Markfds01/shine-switchpoints/internal/logging"
	"github.com/Markfds01/shine-switchpoints/internal/pipeline"
	"github.com/Markfds01/shine-switchpoints/internal/results"
	"github.com/Markfds01/shine-switchpoints/internal/sampler"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// 1. Logger
	verbosity, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log, flush, err := logging.New(verbosity)
	if err != nil {
		return err
	}
	defer flush()
	ctx = logging.IntoContext(ctx, log)

	log.Info("Running switchpoint analysis", "region", cfg.Region, "stage", cfg.Stage,
		"switchpoints", cfg.NSwitchpoints, "weekly", cfg.Weekly, "deaths", cfg.Deaths, "ages", cfg.Ages)

	// 2. Data and output
	loader := dataset.NewFileLoader(cfg.DataDir, log.WithName("dataset"))
	writer, err := results.NewWriter(cfg.OutputDir)
	if err != nil {
		return err
	}

	// 3. Sampler metrics
	reg := prometheus.NewRegistry()
	metrics := sampler.NewMetrics(reg)
	defaults := sampler.DefaultOptions()

	runner := &pipeline.Runner{
		Loader: loader,
		Writer: writer,
		Logger: log.WithName("pipeline"),
		Sampler: sampler.Options{
			Draws:        cfg.Draws,
			Tune:         cfg.Tune,
			TargetAccept: cfg.TargetAccept,
			Chains:       cfg.Chains,
			Seed:         cfg.Seed,
			FindMAP:      cfg.FindMAP,
			PathLength:   defaults.PathLength,
			MaxLeapfrog:  defaults.MaxLeapfrog,
			Jitter:       defaults.Jitter,
			Metrics:      metrics,
		},
		Init:          cfg.Init,
		Layout:        cfg.Layout,
		Plot:          cfg.Plot,
		MaxPredictive: 1000,
	}

	// 4. Optional Postgres sink
	if cfg.PostgresDSN != "" {
		sink, db, err := results.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		runner.Sink = sink
		log.V(1).Info("Storing summaries in Postgres")
	}

	// 5. Fit
	rep, runErr := runner.Execute(ctx, pipeline.PlanFromConfig(cfg))

	// 6. Print what finished, even after a partial failure
	if rep != nil {
		PrintReport(os.Stdout, rep)
	}

	// 7. Metrics snapshot
	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, reg); err != nil {
			log.Error(err, "Writing metrics failed", "path", cfg.MetricsFile)
		} else {
			log.V(1).Info("Metrics written", "path", cfg.MetricsFile)
		}
	}

	if runErr != nil {
		return runErr
	}
	log.Info("Results written", "dir", writer.Dir)
	return nil
}
