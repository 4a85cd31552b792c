// Package export writes simulation results to an output directory.
//
// Every logged record becomes one CSV file with one row per run and one
// column per period. summary.json holds the per-period statistics and
// manifest.json identifies the experiment.
package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/isr-ifi/dpmfa/sim"
	"github.com/isr-ifi/dpmfa/sim/summary"
)

// Output file names.
const (
	SummaryFile  = "summary.json"
	ManifestFile = "manifest.json"
)

// Manifest identifies one experiment and the files it produced.
type Manifest struct {
	RunID       string    `json:"run_id"`
	Model       string    `json:"model"`
	ModelFile   string    `json:"model_file,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Seed        int64     `json:"seed"`
	Runs        int       `json:"runs"`
	Periods     int       `json:"periods"`
	StartYear   int       `json:"start_year"`
	CreatedAt   time.Time `json:"created_at"`
	Files       []string  `json:"files"`
}

// NewManifest creates a manifest for res with a fresh run id.
func NewManifest(res *sim.Results, seed int64, startYear int) *Manifest {
	return &Manifest{
		RunID:     uuid.NewString(),
		Model:     res.ModelName,
		Seed:      seed,
		Runs:      res.Runs,
		Periods:   res.Periods,
		StartYear: startYear,
		CreatedAt: time.Now().UTC(),
	}
}

// FileName builds a result file name. Path separators in compartment names
// are replaced so every file stays inside the output directory.
func FileName(prefix string, names ...string) string {
	clean := make([]string, len(names))
	for i, n := range names {
		clean[i] = strings.Map(func(r rune) rune {
			if r == '/' || r == '\\' || r == os.PathSeparator {
				return '_'
			}
			return r
		}, n)
	}
	return prefix + "_" + strings.Join(clean, "_to_") + ".csv"
}

// WriteMatrixCSV writes one row per run. Values use the shortest exact
// representation.
func WriteMatrixCSV(path string, m sim.Matrix) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating csv file")
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	row := make([]string, m.Periods())
	for run, values := range m {
		for p, v := range values {
			row[p] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := writer.Write(row); err != nil {
			return errors.Wrapf(err, "writing csv row %d", run)
		}
	}
	writer.Flush()
	return errors.Wrap(writer.Error(), "flushing csv")
}

// ReadMatrixCSV reads a file written by WriteMatrixCSV.
func ReadMatrixCSV(path string) (sim.Matrix, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening csv file")
	}
	defer func() { _ = file.Close() }()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	m := make(sim.Matrix, len(rows))
	for run, row := range rows {
		m[run] = make([]float64, len(row))
		for p, cell := range row {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing row %d column %d", run, p)
			}
			m[run][p] = v
		}
	}
	return m, nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling json")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// WriteCSVs writes every logged record of res into dir and returns the
// file names in write order.
func WriteCSVs(dir string, res *sim.Results) ([]string, error) {
	var files []string
	write := func(name string, m sim.Matrix) error {
		if err := WriteMatrixCSV(filepath.Join(dir, name), m); err != nil {
			return errors.Wrapf(err, "exporting %s", name)
		}
		files = append(files, name)
		return nil
	}

	for _, src := range res.LoggedOutflows() {
		flows := res.Outflows(src)
		for _, tgt := range res.Targets(src) {
			if err := write(FileName("loggedOutflows", src, tgt), flows[tgt]); err != nil {
				return files, err
			}
		}
	}
	for _, name := range res.LoggedInflowNames() {
		m, _ := res.Inflow(name)
		if err := write(FileName("loggedInflows", name), m); err != nil {
			return files, err
		}
	}
	for _, name := range append(res.Stocks(), res.Sinks()...) {
		m, _ := res.Inventory(name)
		if err := write(FileName("inventory", name), m); err != nil {
			return files, err
		}
	}
	for _, src := range res.LoggedImmediateFlows() {
		flows := res.ImmediateFlows(src)
		for _, tgt := range res.Targets(src) {
			if err := write(FileName("immediateFlows", src, tgt), flows[tgt]); err != nil {
				return files, err
			}
		}
	}
	if err := writeTotals(res, write); err != nil {
		return files, err
	}
	return files, nil
}

// writeTotals writes the summed outflows of every logged source and the
// inflow and inventory totals of every category. Categories whose members do
// not all log inflows, or that hold no sink or stock, are skipped.
func writeTotals(res *sim.Results, write func(string, sim.Matrix) error) error {
	for _, src := range res.LoggedOutflows() {
		total, err := res.TotalOutflows(src)
		if err != nil {
			return err
		}
		if err := write(FileName("totalOutflows", src), total); err != nil {
			return err
		}
	}
	for _, cat := range res.Categories() {
		if m, err := res.CategoryInflows(cat); err != nil {
			logrus.Debugf("skipping inflow total of category %s: %v", cat, err)
		} else if err := write(FileName("categoryInflows", cat), m); err != nil {
			return err
		}
		if m, err := res.CategoryInventory(cat); err != nil {
			logrus.Debugf("skipping inventory total of category %s: %v", cat, err)
		} else if err := write(FileName("categoryInventory", cat), m); err != nil {
			return err
		}
	}
	return nil
}

// WriteAll creates dir if needed and writes the CSV files, the summary and
// the manifest. The manifest's file list is filled in.
func WriteAll(dir string, res *sim.Results, sum *summary.Summary, man *Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating output directory %s", dir)
	}
	files, err := WriteCSVs(dir, res)
	if err != nil {
		return err
	}
	if err := WriteJSON(filepath.Join(dir, SummaryFile), sum); err != nil {
		return err
	}
	man.Files = append(files, SummaryFile)
	if err := WriteJSON(filepath.Join(dir, ManifestFile), man); err != nil {
		return err
	}
	logrus.Infof("Wrote %d result files to %s (run %s)", len(man.Files)+1, dir, man.RunID)
	return nil
}

// ReadManifest loads manifest.json from dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, errors.Wrap(err, "reading manifest")
	}
	var man Manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return nil, errors.Wrap(err, "parsing manifest")
	}
	return &man, nil
}
