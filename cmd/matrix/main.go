// Command matrix replays a set of scenarios against a set of fixtures and
// ranks them by robustness score.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sweep-trading-bot/config"
	"sweep-trading-bot/internal/matrix"
	"sweep-trading-bot/internal/replay"
)

func main() {
	fixtureGlob := flag.String("fixtures", "", "glob of 1-minute candle CSV fixtures")
	scenarioPath := flag.String("scenarios", "", "YAML file of named scenarios")
	configPath := flag.String("config", "", "path to config file (optional)")
	symbol := flag.String("symbol", "", "symbol label, used for pip size lookup")
	workers := flag.Int("workers", 0, "worker pool size (0 = CPU count)")
	jsonOut := flag.String("out", "", "write aggregates + results JSON to this path")
	flag.Parse()

	if *fixtureGlob == "" || *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "usage: matrix -fixtures 'data/*.csv' -scenarios scenarios.yaml [-config <config.json>]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config: %v", err)
	}
	if *symbol != "" {
		cfg.Symbols = []string{*symbol}
	}
	pipSize := cfg.PipSize(cfg.Symbols[0])

	paths, err := filepath.Glob(*fixtureGlob)
	if err != nil {
		fatal("bad fixture glob: %v", err)
	}
	if len(paths) == 0 {
		fatal("no fixtures match %s", *fixtureGlob)
	}

	fixtures := make([]matrix.Fixture, 0, len(paths))
	for _, path := range paths {
		candles, err := replay.LoadFixtureCSV(path)
		if err != nil {
			fatal("load fixture %s: %v", path, err)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		fixtures = append(fixtures, matrix.Fixture{Name: name, PipSize: pipSize, Candles: candles})
	}

	scenarios, err := matrix.LoadScenarios(*scenarioPath)
	if err != nil {
		fatal("load scenarios: %v", err)
	}

	runner := matrix.NewRunner(cfg, *workers)
	aggregates, results, err := runner.Run(fixtures, scenarios)
	if err != nil {
		fatal("matrix run failed: %v", err)
	}

	fmt.Printf("fixtures=%d scenarios=%d runs=%d\n\n", len(fixtures), len(scenarios), len(results))
	fmt.Printf("%-36s %8s %9s %9s %9s %10s\n", "scenario", "coverage", "meanNetR", "worstNetR", "worstDD", "robustness")
	for _, agg := range aggregates {
		fmt.Printf("%-36s %7.0f%% %9.2f %9.2f %9.2f %10.3f\n",
			agg.Scenario, agg.Coverage*100, agg.MeanNetR, agg.WorstNetR, agg.WorstDrawdownR, agg.Robustness)
	}

	for _, res := range results {
		if res.Err != "" {
			fmt.Fprintf(os.Stderr, "run failed: scenario=%s fixture=%s: %s\n", res.Scenario, res.Fixture, res.Err)
		}
	}

	if *jsonOut != "" {
		payload := struct {
			Aggregates []matrix.ScenarioAggregate `json:"aggregates"`
			Results    []matrix.RunResult         `json:"results"`
		}{aggregates, results}
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			fatal("marshal output: %v", err)
		}
		if err := os.WriteFile(*jsonOut, data, 0o644); err != nil {
			fatal("write output: %v", err)
		}
		fmt.Printf("\nresults written to %s\n", *jsonOut)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
