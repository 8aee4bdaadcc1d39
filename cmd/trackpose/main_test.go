package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackpose/internal/config"
	"github.com/banshee-data/trackpose/internal/pose"
)

func TestParseIndices(t *testing.T) {
	got, err := parseIndices("1, 0,1,")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 0, 1}, got)

	for _, bad := range []string{"", ",", "a", "-1", "4294967296"} {
		_, err := parseIndices(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"-invert-x", "-devices", "2,0", "-listen", ":9000"})
	require.NoError(t, err)
	assert.True(t, o.set["invert-x"])
	assert.True(t, o.set["devices"])
	assert.False(t, o.set["invert-z"])

	_, err = parseFlags([]string{"-dev", "-fixture", "poses.json"})
	assert.Error(t, err)

	_, err = parseFlags([]string{"-no-such-flag"})
	assert.Error(t, err)
}

func TestBuildConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "tracking.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{
		"invert_x": true,
		"invert_z": true,
		"synthetic_devices": 4,
		"device_indices": [3],
		"listen": ":7000"
	}`), 0o644))

	o, err := parseFlags([]string{"-config", cfgPath, "-invert-x=false", "-devices", "0,2", "-db", "rec.db"})
	require.NoError(t, err)
	cfg, err := buildConfig(o)
	require.NoError(t, err)

	assert.Equal(t, pose.AxisConfig{InvertZ: true}, cfg.AxisConfig())
	assert.Equal(t, []uint32{0, 2}, cfg.GetDeviceIndices())
	assert.Equal(t, ":7000", cfg.GetListen(), "unset flags keep file values")
	assert.Equal(t, "rec.db", cfg.GetDBPath())
}

func TestBuildConfig_Errors(t *testing.T) {
	o, err := parseFlags([]string{"-devices", "0,5"})
	require.NoError(t, err)
	_, err = buildConfig(o)
	assert.ErrorContains(t, err, "out of range")

	o, err = parseFlags([]string{"-config", "missing.json"})
	require.NoError(t, err)
	_, err = buildConfig(o)
	assert.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	cfg := config.DefaultTrackingConfig()
	p, err := newProvider(cfg)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSyntheticDevices, p.DeviceCount())

	fixture := filepath.Join(t.TempDir(), "poses.json")
	require.NoError(t, os.WriteFile(fixture, []byte(`{"devices": [[1,0,0,0, 0,1,0,0, 0,0,1,0]]}`), 0o644))

	o, err := parseFlags([]string{"-fixture", fixture, "-devices", "0"})
	require.NoError(t, err)
	cfg, err = buildConfig(o)
	require.NoError(t, err)
	p, err = newProvider(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, p.DeviceCount())

	cfg.DeviceIndices = []uint32{1}
	_, err = newProvider(cfg)
	assert.ErrorContains(t, err, "out of range")
}
