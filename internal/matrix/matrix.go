// Package matrix fans the replay harness out over a grid of strategy
// parameters and historical fixtures, then ranks scenarios by robustness
// rather than raw return.
package matrix

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"sweep-trading-bot/config"
	"sweep-trading-bot/internal/market"
	"sweep-trading-bot/internal/replay"
)

// Robustness score weights. Worst drawdown and missing coverage both
// penalize a scenario so a config that only works on one fixture ranks low.
const (
	drawdownWeight = 0.35
	coverageWeight = 0.5
)

// Fixture is one historical 1-minute candle series to replay against.
type Fixture struct {
	Name    string
	PipSize float64
	Candles []market.Candle
}

// Scenario is one named parameter combination. Patches apply in order on top
// of the base config.
type Scenario struct {
	Name    string
	Patches []config.Patch
}

// Axis is one dimension of a cartesian grid.
type Axis struct {
	Name   string
	Values []AxisValue
}

// AxisValue is one labelled point on an axis.
type AxisValue struct {
	Label string
	Patch config.Patch
}

// BuildGrid expands axes into the cartesian product of their values. Scenario
// names are "axis=label" pairs joined with commas, in axis order.
func BuildGrid(axes []Axis) []Scenario {
	scenarios := []Scenario{{}}
	for _, axis := range axes {
		if len(axis.Values) == 0 {
			continue
		}
		next := make([]Scenario, 0, len(scenarios)*len(axis.Values))
		for _, s := range scenarios {
			for _, v := range axis.Values {
				part := fmt.Sprintf("%s=%s", axis.Name, v.Label)
				name := part
				if s.Name != "" {
					name = s.Name + "," + part
				}
				patches := append(append([]config.Patch{}, s.Patches...), v.Patch)
				next = append(next, Scenario{Name: name, Patches: patches})
			}
		}
		scenarios = next
	}
	if len(scenarios) == 1 && scenarios[0].Name == "" {
		return nil
	}
	return scenarios
}

type scenarioFile struct {
	Scenarios []struct {
		Name         string `yaml:"name"`
		config.Patch `yaml:",inline"`
	} `yaml:"scenarios"`
}

// LoadScenarios reads a YAML file of named parameter patches.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	var f scenarioFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scenario file: %w", err)
	}
	if len(f.Scenarios) == 0 {
		return nil, fmt.Errorf("scenario file %s defines no scenarios", path)
	}
	out := make([]Scenario, 0, len(f.Scenarios))
	for i, s := range f.Scenarios {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("scenario-%d", i+1)
		}
		out = append(out, Scenario{Name: name, Patches: []config.Patch{s.Patch}})
	}
	return out, nil
}

// RunResult is the outcome of one (scenario, fixture) replay.
type RunResult struct {
	Scenario string         `json:"scenario"`
	Fixture  string         `json:"fixture"`
	Summary  replay.Summary `json:"summary"`
	Err      string         `json:"err,omitempty"`
}

// ScenarioAggregate folds one scenario's results across all fixtures.
type ScenarioAggregate struct {
	Scenario       string  `json:"scenario"`
	Fixtures       int     `json:"fixtures"`
	Coverage       float64 `json:"coverage"` // fraction of fixtures with >=1 trade
	MeanNetR       float64 `json:"meanNetR"`
	WorstNetR      float64 `json:"worstNetR"`
	WorstDrawdownR float64 `json:"worstDrawdownR"`
	Robustness     float64 `json:"robustness"`
}

// Runner executes scenario×fixture replays on a bounded worker pool.
type Runner struct {
	base    *config.Config
	workers int
}

// NewRunner builds a runner over the base config. workers <= 0 uses the CPU
// count.
func NewRunner(base *config.Config, workers int) *Runner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Runner{base: base, workers: workers}
}

// Run replays every scenario against every fixture and returns the per-pair
// results plus per-scenario aggregates, ranked best-first by robustness.
// Individual replay failures are recorded on the pair, not fatal.
func (r *Runner) Run(fixtures []Fixture, scenarios []Scenario) ([]ScenarioAggregate, []RunResult, error) {
	if len(fixtures) == 0 {
		return nil, nil, fmt.Errorf("matrix: no fixtures")
	}
	if len(scenarios) == 0 {
		return nil, nil, fmt.Errorf("matrix: no scenarios")
	}

	type job struct {
		idx      int
		scenario Scenario
		fixture  Fixture
	}
	jobs := make(chan job)
	results := make([]RunResult, len(fixtures)*len(scenarios))

	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.idx] = r.runOne(j.scenario, j.fixture)
			}
		}()
	}

	idx := 0
	for _, s := range scenarios {
		for _, f := range fixtures {
			jobs <- job{idx: idx, scenario: s, fixture: f}
			idx++
		}
	}
	close(jobs)
	wg.Wait()

	return aggregate(results, len(fixtures)), results, nil
}

func (r *Runner) runOne(s Scenario, f Fixture) RunResult {
	cfg := r.base
	for _, p := range s.Patches {
		cfg = config.Apply(cfg, p)
	}
	out := RunResult{Scenario: s.Name, Fixture: f.Name}
	res, err := replay.Run(f.Candles, f.PipSize, cfg)
	if err != nil {
		out.Err = err.Error()
		return out
	}
	out.Summary = res.Summary
	return out
}

// aggregate groups results by scenario, preserving scenario order within the
// input, then ranks by robustness score descending (name breaks ties).
func aggregate(results []RunResult, fixturesPerScenario int) []ScenarioAggregate {
	var aggs []ScenarioAggregate
	for i := 0; i < len(results); i += fixturesPerScenario {
		chunk := results[i : i+fixturesPerScenario]
		agg := ScenarioAggregate{Scenario: chunk[0].Scenario, Fixtures: len(chunk)}

		covered := 0
		seeded := false
		var sumNetR float64
		for _, res := range chunk {
			if res.Err != "" {
				continue
			}
			sumNetR += res.Summary.NetR
			// Seed worst-net-R from the first non-errored run; an errored
			// fixture must not inject a phantom zero.
			if !seeded || res.Summary.NetR < agg.WorstNetR {
				agg.WorstNetR = res.Summary.NetR
				seeded = true
			}
			if res.Summary.MaxDrawdownR > agg.WorstDrawdownR {
				agg.WorstDrawdownR = res.Summary.MaxDrawdownR
			}
			if res.Summary.Trades > 0 {
				covered++
			}
		}
		agg.Coverage = float64(covered) / float64(len(chunk))
		agg.MeanNetR = sumNetR / float64(len(chunk))
		agg.Robustness = agg.MeanNetR - drawdownWeight*agg.WorstDrawdownR - coverageWeight*(1-agg.Coverage)
		aggs = append(aggs, agg)
	}

	sort.SliceStable(aggs, func(i, j int) bool {
		if aggs[i].Robustness != aggs[j].Robustness {
			return aggs[i].Robustness > aggs[j].Robustness
		}
		return strings.Compare(aggs[i].Scenario, aggs[j].Scenario) < 0
	})
	return aggs
}
