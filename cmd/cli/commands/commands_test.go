package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tu "github.com/jayeshkapadnis/ts-anamoly-detector/internal/testutil"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
)

type reportJSON struct {
	RunID         string   `json:"run_id"`
	ModelLocation string   `json:"model_location"`
	SeqLength     int      `json:"seq_length"`
	TrainWindows  int      `json:"train_windows"`
	TestWindows   int      `json:"test_windows"`
	FinalLoss     *float64 `json:"final_loss"`
	Normal        []struct {
		Index int      `json:"index"`
		Score *float64 `json:"score"`
	} `json:"normal"`
	Anomalous []struct {
		Index int      `json:"index"`
		Score *float64 `json:"score"`
	} `json:"anomalous"`
}

func writeFixtures(t *testing.T) (dir, configFile, input string) {
	t.Helper()
	dir = t.TempDir()

	input = filepath.Join(dir, "series.csv")
	require.NoError(t, os.WriteFile(input, []byte(tu.SineSeries(70, 2, ",")), 0644))

	configFile = filepath.Join(dir, "config.yaml")
	config := fmt.Sprintf(`detector:
  seq_length: 9
  hidden_layers: [6, 4, 2]
  epochs: 2
  batch_size: 8
  workers: 2
  top_k: 3
  model_output_path: %s
sinks:
  types: [file]
  file:
    base_path: %s
log:
  level: error
`, filepath.Join(dir, "models"), filepath.Join(dir, "reports"))
	require.NoError(t, os.WriteFile(configFile, []byte(config), 0644))
	return dir, configFile, input
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTrainCommand(t *testing.T) {
	dir, configFile, input := writeFixtures(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "models"), 0755))

	out, err := execute(t, "train", "--config", configFile, "--input", input, "--json")
	require.NoError(t, err)

	var report reportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 54, report.TrainWindows)
	assert.Equal(t, 6, report.TestWindows)
	assert.Equal(t, 9, report.SeqLength)
	assert.Len(t, report.Normal, 3)
	assert.Len(t, report.Anomalous, 3)
	require.NotNil(t, report.FinalLoss)

	modelPath := filepath.Join(dir, "models", constants.DefaultModelFileName)
	assert.Equal(t, modelPath, report.ModelLocation)
	tu.AssertFileExists(t, modelPath)
	tu.AssertFileExists(t, filepath.Join(dir, "reports", report.RunID+".json"), report.RunID)
}

func TestTrainFlagsOverrideConfig(t *testing.T) {
	dir, configFile, input := writeFixtures(t)
	modelPath := filepath.Join(dir, "custom.gob.gz")

	out, err := execute(t, "train", input, "--config", configFile,
		"--top-k", "2", "--output", modelPath, "--sink", "none", "--json")
	require.NoError(t, err)

	var report reportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.Normal, 2)
	assert.Equal(t, modelPath, report.ModelLocation)
	assert.NoDirExists(t, filepath.Join(dir, "reports"))
}

func TestTrainTextOutput(t *testing.T) {
	dir, configFile, input := writeFixtures(t)

	out, err := execute(t, "train", input, "--config", configFile,
		"--output", filepath.Join(dir, "model.gob.gz"), "--show-windows")
	require.NoError(t, err)

	assert.Contains(t, out, "Threshold:")
	assert.Contains(t, out, "(p95)")
	assert.Contains(t, out, "Normal windows (3)")
	assert.Contains(t, out, "Anomalous windows (3)")
	assert.Contains(t, out, "RANK")
	assert.Contains(t, out, "window ")
}

func TestTrainInvalidInput(t *testing.T) {
	dir, configFile, _ := writeFixtures(t)
	input := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(input, []byte("1.0,2.0\n1.0,,abc\n"), 0644))

	_, err := execute(t, "train", input, "--config", configFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestTrainMissingInput(t *testing.T) {
	_, configFile, _ := writeFixtures(t)

	_, err := execute(t, "train", "--config", configFile, "--input", "/does/not/exist.csv")
	assert.Error(t, err)
}

func TestScoreCommand(t *testing.T) {
	dir, configFile, input := writeFixtures(t)
	modelPath := filepath.Join(dir, "model.gob.gz")

	_, err := execute(t, "train", input, "--config", configFile, "--output", modelPath, "--sink", "none")
	require.NoError(t, err)

	out, err := execute(t, "score", input, "--config", configFile, "--model", modelPath, "--top-k", "5", "--json")
	require.NoError(t, err)

	var report reportJSON
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 60, report.TestWindows)
	assert.Equal(t, 0, report.TrainWindows)
	assert.Equal(t, modelPath, report.ModelLocation)
	assert.Len(t, report.Normal, 5)
	assert.Len(t, report.Anomalous, 5)
}

func TestScoreRequiresModel(t *testing.T) {
	_, configFile, input := writeFixtures(t)

	_, err := execute(t, "score", input, "--config", configFile)
	assert.Error(t, err)
}

func TestScoreMissingModel(t *testing.T) {
	dir, configFile, input := writeFixtures(t)

	_, err := execute(t, "score", input, "--config", configFile, "--model", filepath.Join(dir, "missing.gob.gz"))
	assert.Error(t, err)
}

func TestSetupLogger(t *testing.T) {
	logger := setupLogger("debug", "json")
	assert.Equal(t, "debug", logger.GetLevel().String())

	logger = setupLogger("nonsense", "text")
	assert.Equal(t, "info", logger.GetLevel().String())
}
