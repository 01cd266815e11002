// Command roadsim runs the road traffic simulation over a road map file.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/akamensky/argparse"

	"github.com/najoast/roadsim/bootstrap"
	"github.com/najoast/roadsim/config"
	"github.com/najoast/roadsim/logging"
	"github.com/najoast/roadsim/roadmap"
)

type flags struct {
	configFile string
	mapFile    string
	output     string
	logLevel   string
	workers    int
	minutes    int
	seed       int
	policy     string
}

func parseFlags(args []string) (*flags, error) {
	parser := argparse.NewParser("roadsim", "Road traffic simulation over pooled actors")

	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file (yaml or json), hot-reloaded"})
	output := parser.String("o", "output", &argparse.Options{Help: "Results file, overrides output.results_path"})
	logLevel := parser.Selector("l", "log-level", []string{"debug", "info", "warn", "error"}, &argparse.Options{Help: "Log level"})
	workers := parser.Int("w", "workers", &argparse.Options{Help: "Worker pool size"})
	minutes := parser.Int("m", "minutes", &argparse.Options{Help: "Simulated minutes to run"})
	seed := parser.Int("s", "seed", &argparse.Options{Help: "Random seed, 0 seeds from the clock"})
	policy := parser.Selector("p", "policy", []string{config.PolicyQuit, config.PolicyIgnore}, &argparse.Options{Help: "What to do when the pool is exhausted"})
	mapFile := parser.StringPositional(&argparse.Options{Required: true, Help: "Road map file"})

	if err := parser.Parse(args); err != nil {
		return nil, fmt.Errorf("%s", parser.Usage(err))
	}
	if *mapFile == "" {
		return nil, fmt.Errorf("%s", parser.Usage("a road map file is required"))
	}

	return &flags{
		configFile: *configFile,
		mapFile:    *mapFile,
		output:     *output,
		logLevel:   *logLevel,
		workers:    *workers,
		minutes:    *minutes,
		seed:       *seed,
		policy:     *policy,
	}, nil
}

// apply layers command line flags over the loaded configuration.
func (f *flags) apply(cfg *config.Config) error {
	if f.output != "" {
		cfg.Output.ResultsPath = f.output
	}
	if f.logLevel != "" {
		cfg.Log.Level = config.LogLevel(f.logLevel)
	}
	if f.workers != 0 {
		cfg.Pool.Workers = f.workers
	}
	if f.minutes != 0 {
		cfg.Simulation.MaxMinutes = f.minutes
	}
	if f.seed != 0 {
		cfg.App.Seed = int64(f.seed)
	}
	if f.policy != "" {
		cfg.Pool.Policy = f.policy
	}
	return cfg.Validate()
}

func run(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(f.configFile)
	if err != nil {
		return err
	}
	if err := f.apply(cfg); err != nil {
		return err
	}

	out, err := logging.Open(cfg.Log.Output)
	if err != nil {
		return err
	}
	defer out.Close()
	logger, err := logging.New(cfg.Log, cfg.App.Name, out)
	if err != nil {
		return err
	}

	g, err := roadmap.LoadFile(f.mapFile, cfg.Simulation.MaxRoadsPerJunction)
	if err != nil {
		return err
	}

	app, err := bootstrap.NewApplication(bootstrap.Options{
		Config:        cfg,
		Graph:         g,
		Logger:        logger,
		ConfigFile:    f.configFile,
		Loader:        loader,
		HandleSignals: true,
	})
	if err != nil {
		return err
	}

	if err := app.Run(context.Background()); err != nil {
		logger.Error("simulation failed", "run", app.RunID(), "err", err)
		return err
	}
	return nil
}

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
