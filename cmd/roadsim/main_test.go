package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/najoast/roadsim/config"
)

func TestParseFlags(t *testing.T) {
	f, err := parseFlags([]string{"roadsim", "-o", "out.txt", "-w", "32", "-p", "ignore", "-s", "5", "city.map"})
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if f.mapFile != "city.map" || f.output != "out.txt" || f.workers != 32 || f.policy != "ignore" || f.seed != 5 {
		t.Errorf("Unexpected flags %+v", f)
	}

	f, err = parseFlags([]string{"roadsim"})
	if err == nil {
		t.Fatalf("Expected an error without a road map, got %+v", f)
	}
	if !strings.Contains(err.Error(), "road map file is required") || !strings.Contains(err.Error(), "usage:") {
		t.Errorf("Expected usage text, got %q", err)
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	f := &flags{output: "out.txt", logLevel: "debug", workers: 8, minutes: 3, seed: 9, policy: config.PolicyIgnore}
	if err := f.apply(cfg); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if cfg.Output.ResultsPath != "out.txt" || cfg.Log.Level != config.LogLevelDebug || cfg.Pool.Workers != 8 ||
		cfg.Simulation.MaxMinutes != 3 || cfg.App.Seed != 9 || cfg.Pool.Policy != config.PolicyIgnore {
		t.Errorf("Flags not applied: %+v", cfg)
	}

	if err := (&flags{workers: 1}).apply(config.DefaultConfig()); !errors.Is(err, config.ErrInvalidWorkers) {
		t.Errorf("Expected ErrInvalidWorkers, got %v", err)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	mapFile := filepath.Join(dir, "ring.map")
	layout := "# Road layout: 3\n0 1 20 50\n1 2 20 50\n2 0 20 50\n# Traffic lights:\n1\n"
	if err := os.WriteFile(mapFile, []byte(layout), 0o644); err != nil {
		t.Fatalf("Failed to write map: %v", err)
	}
	configFile := filepath.Join(dir, "roadsim.yaml")
	settings := "log:\n  output: " + filepath.Join(dir, "roadsim.log") + "\n" +
		"simulation:\n  minute_length: 50ms\n  spawn_min: 1\n  spawn_max: 2\n"
	if err := os.WriteFile(configFile, []byte(settings), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	results := filepath.Join(dir, "results")

	if err := run([]string{"roadsim", "-c", configFile, "-o", results, "-m", "2", "-w", "64", "-s", "3", mapFile}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := os.Stat(results); err != nil {
		t.Errorf("Results file missing: %v", err)
	}

	if err := run([]string{"roadsim", "-c", configFile, filepath.Join(dir, "missing.map")}); err == nil {
		t.Error("Expected an error for a missing road map")
	}
}
