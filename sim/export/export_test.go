package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isr-ifi/dpmfa/sim"
	"github.com/isr-ifi/dpmfa/sim/summary"
)

func stockResults(t *testing.T) *sim.Results {
	t.Helper()
	release, err := sim.ListRelease([]float64{0.5, 0.5}, 0)
	require.NoError(t, err)

	m := sim.NewModel("export")
	require.NoError(t, m.SetCompartments([]*sim.Compartment{
		sim.NewFlowCompartment("A", sim.WithLogInflows(), sim.WithLogOutflows(), sim.WithTransfers(
			sim.ConstTransfer(0.4, "Store", 1),
			sim.ConstTransfer(0.6, "Sink", 1),
		)),
		sim.NewStock("Store", sim.WithCategories("stored"), sim.WithLogImmediateFlows(), sim.WithRelease(release), sim.WithTransfers(
			sim.ConstTransfer(1, "Sink", 1),
		)),
		sim.NewSink("Sink", sim.WithCategories("waste"), sim.WithLogInflows()),
	}))
	m.AddInflow(sim.ExternalListInflow("A", []sim.PeriodInflow{sim.FixedValueInflow(10), sim.FixedValueInflow(20), sim.FixedValueInflow(0)}))

	s, err := sim.NewSimulator(sim.NewConfig(3, 3, 7))
	require.NoError(t, err)
	require.NoError(t, s.SetModel(m))
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	return res
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "loggedOutflows_A_to_B.csv", FileName("loggedOutflows", "A", "B"))
	assert.Equal(t, "loggedInflows_A.csv", FileName("loggedInflows", "A"))
	assert.Equal(t, "inventory_road_rail.csv", FileName("inventory", "road/rail"))
}

func TestMatrixCSV_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.csv")
	m := sim.Matrix{{1.5, 0, 1e-9}, {2, 3.25, 100000}}

	require.NoError(t, WriteMatrixCSV(path, m))
	got, err := ReadMatrixCSV(path)

	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestReadMatrixCSV_BadCell(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("1,x\n"), 0644))

	_, err := ReadMatrixCSV(path)
	assert.Error(t, err)
}

func TestWriteAll_ProducesAllFiles(t *testing.T) {
	// GIVEN results with logged flows, a stock and a sink
	res := stockResults(t)
	dir := filepath.Join(t.TempDir(), "experiment_output")
	man := NewManifest(res, 7, 2020)
	man.Fingerprint = "00ff"

	// WHEN writing everything to a directory that does not exist yet
	require.NoError(t, WriteAll(dir, res, summary.Summarize(res), man))

	// THEN every record has its own file
	for _, name := range []string{
		"loggedOutflows_A_to_Store.csv",
		"loggedOutflows_A_to_Sink.csv",
		"loggedInflows_A.csv",
		"loggedInflows_Sink.csv",
		"inventory_Store.csv",
		"inventory_Sink.csv",
		"immediateFlows_Store_to_Sink.csv",
		"totalOutflows_A.csv",
		"categoryInflows_waste.csv",
		"categoryInventory_waste.csv",
		"categoryInventory_stored.csv",
		SummaryFile,
		ManifestFile,
	} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	// AND the CSV content matches the results
	got, err := ReadMatrixCSV(filepath.Join(dir, "loggedOutflows_A_to_Store.csv"))
	require.NoError(t, err)
	assert.Equal(t, res.Outflows("A")["Store"], got)

	// AND a category is skipped where its members do not log inflows
	assert.NoFileExists(t, filepath.Join(dir, "categoryInflows_stored.csv"))

	// AND totals sum their parts
	total, err := ReadMatrixCSV(filepath.Join(dir, "totalOutflows_A.csv"))
	require.NoError(t, err)
	in, _ := res.Inflow("A")
	for run := range in {
		assert.InDeltaSlice(t, in[run], total[run], 1e-9)
	}
	waste, err := ReadMatrixCSV(filepath.Join(dir, "categoryInventory_waste.csv"))
	require.NoError(t, err)
	inv, _ := res.Inventory("Sink")
	assert.Equal(t, inv, waste)

	// AND the manifest can be read back
	read, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, man.RunID, read.RunID)
	assert.Equal(t, "export", read.Model)
	assert.Equal(t, 2020, read.StartYear)
	assert.Equal(t, "00ff", read.Fingerprint)
	assert.Contains(t, read.Files, SummaryFile)
	assert.NotContains(t, read.Files, ManifestFile)
	assert.Contains(t, read.Files, "categoryInventory_stored.csv")
}

func TestNewManifest_UniqueRunIDs(t *testing.T) {
	res := stockResults(t)
	a := NewManifest(res, 1, 2000)
	b := NewManifest(res, 1, 2000)

	assert.NotEqual(t, a.RunID, b.RunID)
	_, err := uuid.Parse(a.RunID)
	assert.NoError(t, err)
	assert.Equal(t, 3, a.Runs)
	assert.Equal(t, 3, a.Periods)
}

func TestReadManifest_Missing(t *testing.T) {
	_, err := ReadManifest(t.TempDir())
	assert.Error(t, err)
}
