package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/streamguard/pkg/detectors"
	"github.com/hed1ad/streamguard/pkg/errdefs"
	"github.com/hed1ad/streamguard/pkg/limits"
	"github.com/hed1ad/streamguard/pkg/suppress"
	"github.com/hed1ad/streamguard/pkg/threshold"
)

const sample = `
validate:
  miss_max_rate: 0.2
preprocess:
  interval: 1min
algorithms:
  - kind: threshold
    window: 1
    upper_bound: 20
    lower_bound: {columns: {CpuLoad: -5}}
  - kind: differentiate
    window: 3
    threshold: {kind: sigma, sigma: 3}
  - kind: incremental
    window_size: 2
    window_number: 3
    upper_bound: 10
suppress:
  common:
    - {kind: continuous, gap: 10D}
    - {kind: transient, window: 5, anomalies: 3}
  differentiate:
    - {kind: variation_ratio, history_length: 10, threshold: 0.05}
severity:
  algorithm: {threshold: 1, differentiate: 0.85}
  history: {gap: 2D}
`

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 0.0, cfg.Validation.MissMaxRate)
	assert.Zero(t, cfg.Preprocess.Interval)
	assert.Empty(t, cfg.Algorithms)
	assert.NotNil(t, cfg.Suppress)
	assert.Nil(t, cfg.Severity.History)
	assert.NoError(t, cfg.Validate())
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 0.2, cfg.Validation.MissMaxRate)
	assert.Equal(t, time.Minute, cfg.Preprocess.Interval.Std())
	require.Len(t, cfg.Algorithms, 3)

	thr := cfg.Algorithms[0]
	assert.Equal(t, detectors.KindThreshold, *thr.Kind)
	up, ok := thr.UpperBound.For("any")
	require.True(t, ok)
	assert.Equal(t, 20.0, up)
	low, ok := thr.LowerBound.For("CpuLoad")
	require.True(t, ok, "column names keep their case")
	assert.Equal(t, -5.0, low)
	_, ok = thr.LowerBound.For("cpuload")
	assert.False(t, ok)

	p := cfg.Algorithms[1].Threshold.Params()
	assert.Equal(t, threshold.KindSigma, p.Kind)
	assert.Equal(t, 3.0, p.Sigma)
	assert.Equal(t, threshold.DefaultWindow, p.Window)

	assert.Equal(t, 10*24*time.Hour, cfg.Suppress["common"][0].Gap.Std())
	assert.Equal(t, suppress.KindTransient, *cfg.Suppress["common"][1].Kind)
	assert.Equal(t, 0.85, cfg.Severity.Algorithm["differentiate"])
	require.NotNil(t, cfg.Severity.History)
	assert.Equal(t, 48*time.Hour, cfg.Severity.History.Gap.Std())
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("validate:\n  miss_rate: 0.1\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("algorithms:\n  - kind: percentile\n"))
	assert.Error(t, err)
}

func TestSuppressorsFor(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Len(t, cfg.SuppressorsFor(detectors.KindDifferentiate), 1)
	assert.Len(t, cfg.SuppressorsFor(detectors.KindThreshold), 2)

	empty := DefaultConfig()
	assert.Empty(t, empty.SuppressorsFor(detectors.KindThreshold))
}

func TestConfigValidation(t *testing.T) {
	kind := func(k detectors.Kind) *detectors.Kind { return &k }
	skind := func(k suppress.Kind) *suppress.Kind { return &k }

	tests := []struct {
		name      string
		modifyFn  func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:     "valid default config",
			modifyFn: func(*Config) {},
		},
		{
			name:      "miss rate above one",
			modifyFn:  func(cfg *Config) { cfg.Validation.MissMaxRate = 1.5 },
			wantError: true,
			errorMsg:  "validate.miss_max_rate",
		},
		{
			name:      "algorithm without kind",
			modifyFn:  func(cfg *Config) { cfg.Algorithms = []Algorithm{{Window: 3}} },
			wantError: true,
			errorMsg:  "algorithms[0].kind",
		},
		{
			name: "threshold without bounds",
			modifyFn: func(cfg *Config) {
				cfg.Algorithms = []Algorithm{{Kind: kind(detectors.KindThreshold), Window: 1}}
			},
			wantError: true,
			errorMsg:  "upper_bound or lower_bound",
		},
		{
			name: "incremental without window number",
			modifyFn: func(cfg *Config) {
				cfg.Algorithms = []Algorithm{{Kind: kind(detectors.KindIncremental), WindowSize: 2, UpperBound: limits.Scalar(1)}}
			},
			wantError: true,
			errorMsg:  "window_number",
		},
		{
			name: "differentiate defaults",
			modifyFn: func(cfg *Config) {
				cfg.Algorithms = []Algorithm{{Kind: kind(detectors.KindDifferentiate), Window: 1}}
			},
		},
		{
			name: "transient needs fewer anomalies than window",
			modifyFn: func(cfg *Config) {
				cfg.Suppress["common"] = []Suppressor{{Kind: skind(suppress.KindTransient), Window: 3, Anomalies: 4}}
			},
			wantError: true,
			errorMsg:  "anomalies",
		},
		{
			name: "suppress key must name an algorithm",
			modifyFn: func(cfg *Config) {
				cfg.Suppress["fancy"] = nil
			},
			wantError: true,
			errorMsg:  "suppress.fancy",
		},
		{
			name: "severity weight for unknown algorithm",
			modifyFn: func(cfg *Config) {
				cfg.Severity.Algorithm = map[string]float64{"ThresholdAD": 1}
			},
			wantError: true,
			errorMsg:  "severity.algorithm.ThresholdAD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(&cfg)

			err := cfg.Validate()
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
			assert.True(t, errors.Is(err, errdefs.ErrMissingParameter))

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "10D", want: 240 * time.Hour},
		{in: "5T", want: 5 * time.Minute},
		{in: "T", want: time.Minute},
		{in: "30S", want: 30 * time.Second},
		{in: "2H", want: 2 * time.Hour},
		{in: "1min", want: time.Minute},
		{in: "250ms", want: 250 * time.Millisecond},
		{in: "1h30m", want: 90 * time.Minute},
		{in: "0", want: 0},
		{in: "3 fortnights", wantErr: true},
		{in: "10Q", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Std())
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detect.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Algorithms, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRuntime(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		v, err := NewViper(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)

		r, err := RuntimeFrom(v)
		require.NoError(t, err)
		assert.Equal(t, DefaultRuntime(), r)
	})

	t.Run("file and environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "runtime.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\nbatch:\n  interval: 5T\n"), 0o600))
		t.Setenv("STREAMGUARD_BATCH_SIZE", "10")

		v, err := NewViper(path)
		require.NoError(t, err)
		r, err := RuntimeFrom(v)
		require.NoError(t, err)

		assert.Equal(t, "debug", r.Log.Level)
		assert.Equal(t, 5*time.Minute, r.Batch.Interval.Std())
		assert.Equal(t, 10, r.Batch.Size)
	})

	t.Run("invalid batch size", func(t *testing.T) {
		t.Setenv("STREAMGUARD_BATCH_SIZE", "0")
		v, err := NewViper("")
		require.NoError(t, err)

		_, err = RuntimeFrom(v)
		assert.ErrorContains(t, err, "batch.size")
	})
}
