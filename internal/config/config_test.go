package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gnss-corr/rtcmpipe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
mounts:
  - host: caster.example.org
    port: 2101
    mountpoint: RTCM3EPH
corrMount: RTCM3EPH
corrPath: /tmp/corr
`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// TestLoadAppliesDefaults confirms Defaults() fills in the sampling,
// dump-wait, queue-bound, and BeiDou-offset knobs the spec requires to
// never be hardcoded, even with a mostly-empty config file.
func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1.0, cfg.Sample)
	assert.Equal(t, 33.0, cfg.DumpWait)
	assert.Equal(t, 5, cfg.MaxQueueSize)
	assert.Equal(t, 14, cfg.BDSTowOffsetSeconds)
	assert.Equal(t, "info", cfg.LogLevel)
	require.Len(t, cfg.Mounts, 1)
	assert.Equal(t, "RTCM3EPH", cfg.Mounts[0].Mountpoint)
}

// TestLoadOverridesDefaults confirms explicit values in the file win
// over Defaults().
func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, minimalYAML+"\nsample: 30\ndumpWait: 10\nbdsTowOffsetSeconds: 0\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30.0, cfg.Sample)
	assert.Equal(t, 10.0, cfg.DumpWait)
	assert.Equal(t, 0, cfg.BDSTowOffsetSeconds)
}

// TestLoadRejectsMissingRequiredFields exercises the validator tags:
// a config with no mounts and no corrMount/corrPath must fail to load,
// never silently applying a default for required operational fields.
func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	path := writeTempConfig(t, "corrPath: /tmp/corr\n")

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestSampleIntervalAndDumpWaitDuration(t *testing.T) {
	cfg := config.Defaults()
	cfg.Sample = 2.5
	cfg.DumpWait = 33

	assert.Equal(t, 2500, int(cfg.SampleInterval().Milliseconds()))
	assert.Equal(t, 33, int(cfg.DumpWaitDuration().Seconds()))
}
