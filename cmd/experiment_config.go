package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/isr-ifi/dpmfa/sim"
	"github.com/isr-ifi/dpmfa/sim/plot"
)

// ExperimentConfig holds everything needed to run an experiment.
// It can be loaded from a YAML file (--config); CLI flags override it.
type ExperimentConfig struct {
	Model               string `yaml:"model"`
	Runs                int    `yaml:"runs"`
	Periods             int    `yaml:"periods"`
	Seed                int64  `yaml:"seed"`
	StartYear           int    `yaml:"start_year"`
	SummaryPeriod       int    `yaml:"summary_period"`
	Workers             int    `yaml:"workers"`
	UseGlobalTCSettings bool   `yaml:"use_global_tc_settings"`
	NormalizeTCs        bool   `yaml:"normalize_tcs"`
	Output              string `yaml:"output"`
	Plots               bool   `yaml:"plots"`
	PlotFormat          string `yaml:"plot_format"`
}

// DefaultExperimentConfig matches the example experiment: 10 runs of 5
// periods starting in 1988 with global TC normalization.
func DefaultExperimentConfig() ExperimentConfig {
	return ExperimentConfig{
		Runs:                10,
		Periods:             5,
		Seed:                2250,
		StartYear:           1988,
		UseGlobalTCSettings: true,
		NormalizeTCs:        true,
		Output:              "experiment_output",
		PlotFormat:          "pdf",
	}
}

// loadExperimentConfig reads an experiment YAML on top of the defaults.
// Uses strict field checking: typos must cause errors.
func loadExperimentConfig(path string) (ExperimentConfig, error) {
	cfg := DefaultExperimentConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading experiment config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing experiment config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the experiment parameters that do not depend on the model.
func (c ExperimentConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model file not provided; use --model or set model in the config")
	}
	if c.Runs <= 0 {
		return fmt.Errorf("runs must be positive, got %d", c.Runs)
	}
	if c.Periods <= 0 {
		return fmt.Errorf("periods must be positive, got %d", c.Periods)
	}
	if c.SummaryPeriod < 0 || c.SummaryPeriod >= c.Periods {
		return fmt.Errorf("summary period %d outside [0, %d)", c.SummaryPeriod, c.Periods)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	if c.Output == "" {
		return fmt.Errorf("output directory must not be empty")
	}
	if c.Plots {
		known := false
		for _, f := range plot.ValidFormats {
			known = known || f == c.PlotFormat
		}
		if !known {
			return fmt.Errorf("unknown plot format %q; valid: %v", c.PlotFormat, plot.ValidFormats)
		}
	}
	return nil
}

// SimConfig converts the experiment parameters into a simulator config.
func (c ExperimentConfig) SimConfig() sim.Config {
	return sim.Config{
		Runs:                c.Runs,
		Periods:             c.Periods,
		Seed:                c.Seed,
		UseGlobalTCSettings: c.UseGlobalTCSettings,
		NormalizeTCs:        c.NormalizeTCs,
		Workers:             c.Workers,
	}
}

// resolveExperiment loads --config if given and applies every flag the user
// set explicitly. Unset flags never overwrite config values.
func resolveExperiment(cmd *cobra.Command) (ExperimentConfig, error) {
	cfg := DefaultExperimentConfig()
	if configPath != "" {
		loaded, err := loadExperimentConfig(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("model") || cfg.Model == "" {
		cfg.Model = modelPath
	}
	if flags.Changed("runs") {
		cfg.Runs = runs
	}
	if flags.Changed("periods") {
		cfg.Periods = periods
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("start-year") {
		cfg.StartYear = startYear
	}
	if flags.Changed("summary-period") {
		cfg.SummaryPeriod = summaryPeriod
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("global-tc") {
		cfg.UseGlobalTCSettings = useGlobalTC
	}
	if flags.Changed("normalize") {
		cfg.NormalizeTCs = normalizeTCs
	}
	if flags.Changed("output") {
		cfg.Output = outputDir
	}
	if flags.Changed("plots") {
		cfg.Plots = writePlots
	}
	if flags.Changed("plot-format") {
		cfg.PlotFormat = plotFormat
	}
	return cfg, cfg.Validate()
}
