package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sgio "github.com/hed1ad/streamguard/pkg/io"
	"github.com/hed1ad/streamguard/pkg/store"
	"github.com/hed1ad/streamguard/pkg/store/sqlite"
)

const detection = `
algorithms:
  - kind: threshold
    window: 1
    upper_bound: 50
`

const telemetry = `timestamp,cpu
2022-08-24T00:00:00Z,10
2022-08-24T00:01:00Z,60
2022-08-24T00:02:00Z,20
2022-08-24T00:03:00Z,70
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decode(t *testing.T, out string) []sgio.Result {
	t.Helper()
	var results []sgio.Result
	sc := bufio.NewScanner(bytes.NewBufferString(out))
	for sc.Scan() {
		var r sgio.Result
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		results = append(results, r)
	}
	return results
}

func TestDetect(t *testing.T) {
	cfg := writeFile(t, "detection.yaml", detection)
	data := writeFile(t, "telemetry.csv", telemetry)
	db := filepath.Join(t.TempDir(), "models.db")

	out, err := execute(t, "detect", data,
		"--config", cfg,
		"--batch-size", "2",
		"--log-level", "error",
		"--store", sqliteScheme+db,
	)
	require.NoError(t, err)

	results := decode(t, out)
	require.Len(t, results, 2)
	start := time.Date(2022, 8, 24, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start.Add(time.Minute), results[0].Timestamp)
	assert.Equal(t, 60.0, results[0].Value)
	assert.Equal(t, start.Add(3*time.Minute), results[1].Timestamp)
	assert.Equal(t, 70.0, results[1].Value)
	for _, r := range results {
		assert.Equal(t, "algorithm_0", r.Instance)
		assert.Equal(t, "threshold", r.Algorithm)
		assert.Equal(t, "cpu", r.Column)
	}

	s, err := sqlite.Open(db)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Get(context.Background(), "algorithm_model")
	assert.NoError(t, err, "model saved on exit")
}

func TestDetectOutputFile(t *testing.T) {
	cfg := writeFile(t, "detection.yaml", detection)
	data := writeFile(t, "telemetry.csv", telemetry)
	output := filepath.Join(t.TempDir(), "anomalies.jsonl")

	out, err := execute(t, "detect", data, "-c", cfg, "-o", output, "--prefix", "cpu_", "--log-level", "error")
	require.NoError(t, err)
	assert.Empty(t, out)

	written, err := os.ReadFile(output)
	require.NoError(t, err)
	results := decode(t, string(written))
	require.Len(t, results, 2)
	assert.Equal(t, "cpu_0", results[0].Instance)
}

func TestDetectErrors(t *testing.T) {
	cfg := writeFile(t, "detection.yaml", detection)
	data := writeFile(t, "telemetry.csv", telemetry)

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing config", args: []string{"detect", data}},
		{name: "missing input", args: []string{"detect", "-c", cfg}},
		{name: "unknown file", args: []string{"detect", filepath.Join(t.TempDir(), "none.csv"), "-c", cfg}},
		{name: "invalid detection config", args: []string{"detect", data, "-c", writeFile(t, "bad.yaml", "algorithms: [{kind: nope}]")}},
		{name: "invalid batch size", args: []string{"detect", data, "-c", cfg, "--batch-size", "0"}},
		{name: "invalid log level", args: []string{"detect", data, "-c", cfg, "--log-level", "loud"}},
		{name: "empty prefix", args: []string{"detect", data, "-c", cfg, "--prefix", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestBatchSizeFromEnvironment(t *testing.T) {
	t.Setenv("STREAMGUARD_BATCH_SIZE", "3")

	var out, errOut bytes.Buffer
	cmd := newRootCommand(&out, &errOut)
	detect, _, err := cmd.Find([]string{"detect"})
	require.NoError(t, err)
	require.NoError(t, detect.ParseFlags(nil))

	a := &app{stdout: &out, stderr: &errOut}
	require.NoError(t, a.setup(detect))
	assert.Equal(t, 3, a.runtime.Batch.Size)

	require.NoError(t, detect.ParseFlags([]string{"--batch-size", "7"}))
	require.NoError(t, a.setup(detect))
	assert.Equal(t, 7, a.runtime.Batch.Size, "flags override the environment")
}

func TestOpenModelStore(t *testing.T) {
	s, err := openModelStore("")
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = openModelStore(t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &store.FileStore{}, s)
	require.NoError(t, s.Close())

	s, err = openModelStore(sqliteScheme + filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, s)
	require.NoError(t, s.Close())
}

func TestPcapArgs(t *testing.T) {
	cfg := writeFile(t, "detection.yaml", detection)

	_, err := execute(t, "pcap", "-c", cfg)
	assert.Error(t, err)

	_, err = execute(t, "pcap", "capture.pcap", "--iface", "eth0", "-c", cfg)
	assert.Error(t, err)
}
