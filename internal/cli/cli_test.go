package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/paveg/ecomlake/internal/cli"
	"github.com/paveg/ecomlake/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := cli.Execute(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	files := testutil.WriteOlist(t, dir,
		[]testutil.Order{testutil.DeliveredOrder("o1", "2024-01-05 10:00:00", "2024-01-10 12:00:00")},
		[]testutil.Item{testutil.SimpleItem("o1", "P1", "100.0")},
	)
	path := filepath.Join(dir, "ecomlake.yaml")
	content := "input:\n" +
		"  orders: " + files.Orders + "\n" +
		"  order_items: " + files.Items + "\n" +
		"storage:\n" +
		"  root: " + filepath.Join(dir, "ns") + "\n" +
		"metrics:\n" +
		"  textfile: " + filepath.Join(dir, "ecomlake.prom") + "\n"
	require.NoError(t, writeFile(path, content))
	return path
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ecomlake dev")
	assert.Contains(t, out, "Go Version:")
}

func TestConfigCommandAppliesFlags(t *testing.T) {
	out, _, err := execute(t, "config", "--engine", "duckdb", "--root", "/lake", "--workers", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "name: duckdb")
	assert.Contains(t, out, "root: /lake")
	assert.Contains(t, out, "workers: 3")
}

func TestInvalidConfigFails(t *testing.T) {
	_, stderr, err := execute(t, "config", "--engine", "spark")
	require.Error(t, err)
	assert.Contains(t, stderr, "Error:")
}

func TestRunAndRuns(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	ledgerPath := filepath.Join(dir, "state", "runs.db")

	out, _, err := execute(t, "run", "--config", cfgPath, "--ledger", ledgerPath, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Total Revenue is : 100")
	assert.Contains(t, out, "Uploaded result dataframes")
	assert.FileExists(t, filepath.Join(dir, "ns", "analytics", "monthly_revenue", "part-00000.parquet"))
	assert.FileExists(t, filepath.Join(dir, "ecomlake.prom"))

	out, _, err = execute(t, "runs", "--config", cfgPath, "--ledger", ledgerPath)
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "(1 runs)")
}

func TestRunFailureLogsOnce(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	_, stderr, err := execute(t, "run", "--config", cfgPath, "--output", "error", "--log-level", "error")
	require.NoError(t, err)
	assert.Empty(t, stderr)

	_, stderr, err = execute(t, "run", "--config", cfgPath, "--output", "error", "--log-format", "json")
	require.Error(t, err)
	assert.Contains(t, stderr, `"msg":"command failed"`)
	assert.Contains(t, stderr, "output already exists")
	assert.NotContains(t, stderr, "Error:")
}

func TestStage(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	out, _, err := execute(t, "stage", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Staged ")
	assert.FileExists(t, filepath.Join(dir, "ns", "raw", "olist_orders_dataset.csv"))
	assert.NoDirExists(t, filepath.Join(dir, "ns", "analytics"))
}

func TestRunsRequiresLedger(t *testing.T) {
	_, _, err := execute(t, "runs")
	require.Error(t, err)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
