package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/isr-ifi/dpmfa/sim"
	"github.com/isr-ifi/dpmfa/sim/export"
	"github.com/isr-ifi/dpmfa/sim/modelfile"
	"github.com/isr-ifi/dpmfa/sim/plot"
	"github.com/isr-ifi/dpmfa/sim/summary"
	"github.com/isr-ifi/dpmfa/sim/topology"
)

var (
	// Experiment flags
	modelPath     string // Path to the YAML model definition
	configPath    string // Optional experiment YAML
	runs          int    // Monte-Carlo runs
	periods       int    // Simulated periods per run
	seed          int64  // Master seed
	startYear     int    // Calendar year of period 0
	summaryPeriod int    // Period printed in the summary
	workers       int    // Concurrent runs, 0 = GOMAXPROCS
	useGlobalTC   bool   // Let --normalize decide TC adjustment for all compartments
	normalizeTCs  bool   // Normalize TCs (globally, or where compartments allow it)
	outputDir     string // Directory for CSV, JSON and figure output
	writePlots    bool   // Save one time series figure per logged outflow
	plotFormat    string // Figure format

	logLevel string // Log verbosity level
	dotPath  string // DOT output for the graph command, "-" = stdout
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "dpmfa",
	Short: "Dynamic probabilistic material flow analysis",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// loadModel reads, validates and builds a model file.
func loadModel(path string) (*modelfile.ModelSpec, *sim.Model, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("model file not provided; use --model")
	}
	spec, err := modelfile.LoadModelSpec(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := spec.Build()
	if err != nil {
		return nil, nil, err
	}
	logrus.WithField("model", path).Debugf("Loaded %v", spec)
	return spec, m, nil
}

// checkTopology logs structural problems of the flow network. It returns the
// report so callers can decide whether problems are fatal.
func checkTopology(m *sim.Model) (topology.Report, error) {
	g, err := topology.New(m)
	if err != nil {
		return topology.Report{}, err
	}
	report, err := g.Analyze()
	if err != nil {
		return report, err
	}
	for _, name := range report.Unreachable {
		logrus.Warnf("%s receives no material from any inflow", name)
	}
	for _, name := range report.Trapped {
		logrus.Warnf("flow compartment %s cannot reach a sink or stock", name)
	}
	for _, cycle := range report.Cycles {
		logrus.Debugf("cycle: %v", cycle)
	}
	return report, nil
}

// runExperiment loads the model, simulates it, prints the summary to w and
// writes every result into the output directory.
func runExperiment(ctx context.Context, cfg ExperimentConfig, w io.Writer) (*export.Manifest, error) {
	spec, m, err := loadModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	if _, err := checkTopology(m); err != nil {
		return nil, err
	}

	s, err := sim.NewSimulator(cfg.SimConfig())
	if err != nil {
		return nil, err
	}
	if err := s.SetModel(m); err != nil {
		return nil, err
	}
	s.Describe()

	startTime := time.Now()
	res, err := s.Run(ctx)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Simulated %d runs x %d periods in %v", cfg.Runs, cfg.Periods, time.Since(startTime))

	sum := summary.Summarize(res)
	if err := summary.Print(w, sum, cfg.SummaryPeriod); err != nil {
		return nil, err
	}

	man := export.NewManifest(res, cfg.Seed, cfg.StartYear)
	man.ModelFile = cfg.Model
	man.Fingerprint = spec.Fingerprint
	if err := export.WriteAll(cfg.Output, res, sum, man); err != nil {
		return nil, err
	}
	if cfg.Plots {
		files, err := plot.WriteTimeSeries(cfg.Output, sum, plot.Options{StartYear: cfg.StartYear, Format: cfg.PlotFormat})
		if err != nil {
			return nil, err
		}
		logrus.Infof("Saved %d figures", len(files))
	}
	logrus.WithFields(logrus.Fields{"run_id": man.RunID, "output": cfg.Output}).Info("Simulation complete.")
	return man, nil
}

// runCmd executes the experiment using the model file and flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a Monte-Carlo material flow simulation",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := resolveExperiment(cmd)
		if err != nil {
			logrus.Fatalf("Invalid experiment: %v", err)
		}
		if _, err := runExperiment(cmd.Context(), cfg, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&modelPath, "model", "", "Path to the YAML model definition")

	def := DefaultExperimentConfig()
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to an experiment YAML (flags override its values)")
	runCmd.Flags().IntVar(&runs, "runs", def.Runs, "Number of Monte-Carlo runs")
	runCmd.Flags().IntVar(&periods, "periods", def.Periods, "Number of simulated periods")
	runCmd.Flags().Int64Var(&seed, "seed", def.Seed, "Seed for the random number generator")
	runCmd.Flags().IntVar(&startYear, "start-year", def.StartYear, "Calendar year of the first period")
	runCmd.Flags().IntVar(&summaryPeriod, "summary-period", def.SummaryPeriod, "Period shown in the printed summary")
	runCmd.Flags().IntVar(&workers, "workers", def.Workers, "Concurrent runs (0 = GOMAXPROCS)")
	runCmd.Flags().BoolVar(&useGlobalTC, "global-tc", def.UseGlobalTCSettings, "Let --normalize decide TC adjustment for every compartment")
	runCmd.Flags().BoolVar(&normalizeTCs, "normalize", def.NormalizeTCs, "Normalize transfer coefficients")
	runCmd.Flags().StringVar(&outputDir, "output", def.Output, "Output directory")
	runCmd.Flags().BoolVar(&writePlots, "plots", def.Plots, "Save a time series figure per logged outflow")
	runCmd.Flags().StringVar(&plotFormat, "plot-format", def.PlotFormat, "Figure format (pdf, png, svg)")

	// Attach subcommands to `root`
	rootCmd.AddCommand(runCmd)
}
