package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/isr-ifi/dpmfa/sim/topology"
)

// --- dpmfa validate ---

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a model file without running it",
	Long:  "Load and validate a model file, then analyze its flow network. Exits non-zero if the model cannot be simulated.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := validateModel(modelPath, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Model is invalid: %v", err)
		}
	},
}

func validateModel(path string, w io.Writer) error {
	spec, m, err := loadModel(path)
	if err != nil {
		return err
	}
	report, err := checkTopology(m)
	if err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("%d unreachable and %d trapped compartments", len(report.Unreachable), len(report.Trapped))
	}
	fmt.Fprintf(w, "%s: OK (%d compartments, %d inflows, %d cycles)\n",
		spec.Name, len(m.Compartments), len(m.Inflows), len(report.Cycles))
	return nil
}

// --- dpmfa describe ---

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Log the compartments, transfers and inflows of a model",
	Run: func(cmd *cobra.Command, args []string) {
		if !cmd.Flags().Changed("log") && logrus.GetLevel() < logrus.InfoLevel {
			logrus.SetLevel(logrus.InfoLevel)
		}
		_, m, err := loadModel(modelPath)
		if err != nil {
			logrus.Fatalf("Failed to load model: %v", err)
		}
		m.Describe()
		logrus.Infof("categories: %v", m.Categories())
	},
}

// --- dpmfa graph ---

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Write the flow network in Graphviz DOT format",
	Long:  "Write the flow network of a model in Graphviz DOT format. Output is written to stdout unless --out is given.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := writeGraph(modelPath, dotPath, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Failed to write graph: %v", err)
		}
	},
}

func writeGraph(path, out string, stdout io.Writer) error {
	_, m, err := loadModel(path)
	if err != nil {
		return err
	}
	g, err := topology.New(m)
	if err != nil {
		return err
	}
	if out == "" || out == "-" {
		return g.WriteDOT(stdout)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}
	defer func() { _ = f.Close() }()
	return g.WriteDOT(f)
}

func init() {
	graphCmd.Flags().StringVar(&dotPath, "out", "-", "DOT output file (- for stdout)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(graphCmd)
}
