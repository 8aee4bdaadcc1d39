package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackpose/internal/pose"
	"github.com/banshee-data/trackpose/internal/posemux"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultTrackingConfig(t *testing.T) {
	cfg := DefaultTrackingConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, pose.AxisConfig{}, cfg.AxisConfig())
	assert.Equal(t, []uint32{0}, cfg.GetDeviceIndices())
	assert.Equal(t, DefaultSampleInterval, cfg.GetSampleInterval())
	assert.Equal(t, SourceSynthetic, cfg.GetSource())
	assert.Equal(t, DefaultSyntheticDevices, cfg.GetSyntheticDevices())
	assert.Equal(t, DefaultSyntheticRadius, cfg.GetSyntheticRadius())
	assert.Equal(t, DefaultSyntheticPeriod, cfg.GetSyntheticPeriod())
	assert.Equal(t, DefaultListen, cfg.GetListen())
	assert.Equal(t, "", cfg.GetDBPath())
	assert.Equal(t, DefaultRecordEvery, cfg.GetRecordEvery())
	assert.Equal(t, "", cfg.GetSerialPort())
}

func TestEmptyConfigUsesDefaults(t *testing.T) {
	cfg := &TrackingConfig{}
	require.NoError(t, cfg.Validate())

	assert.False(t, cfg.GetInvertX())
	assert.False(t, cfg.GetInvertZ())
	assert.False(t, cfg.GetFlipXZ())
	assert.Equal(t, []uint32{0}, cfg.GetDeviceIndices())
	assert.Equal(t, 10*time.Millisecond, cfg.GetSampleInterval())
	assert.Equal(t, ":8080", cfg.GetListen())
	assert.Equal(t, posemux.PortOptions{}, cfg.GetSerial())
}

func TestLoadTrackingConfig(t *testing.T) {
	path := writeConfig(t, "tracking.json", `{
		"invert_x": true,
		"flip_xz": true,
		"device_indices": [1, 0, 1],
		"sample_interval": "20ms",
		"source": "synthetic",
		"synthetic_devices": 3,
		"synthetic_radius": 2.5,
		"synthetic_period": "4s",
		"listen": "127.0.0.1:9090",
		"db_path": "poses.db",
		"record_every": 5,
		"serial_port": "/dev/ttyUSB0",
		"serial": {"baud_rate": 9600, "parity": "even"}
	}`)

	cfg, err := LoadTrackingConfig(path)
	require.NoError(t, err)

	assert.Equal(t, pose.AxisConfig{InvertX: true, FlipXZ: true}, cfg.AxisConfig())
	assert.Equal(t, []uint32{1, 0, 1}, cfg.GetDeviceIndices())
	assert.Equal(t, 20*time.Millisecond, cfg.GetSampleInterval())
	assert.Equal(t, 3, cfg.GetSyntheticDevices())
	assert.Equal(t, 2.5, cfg.GetSyntheticRadius())
	assert.Equal(t, 4*time.Second, cfg.GetSyntheticPeriod())
	assert.Equal(t, "127.0.0.1:9090", cfg.GetListen())
	assert.Equal(t, "poses.db", cfg.GetDBPath())
	assert.Equal(t, 5, cfg.GetRecordEvery())
	assert.Equal(t, "/dev/ttyUSB0", cfg.GetSerialPort())
	assert.Equal(t, 9600, cfg.GetSerial().BaudRate)
}

func TestGetDeviceIndicesReturnsCopy(t *testing.T) {
	cfg := &TrackingConfig{DeviceIndices: []uint32{2, 3}}
	got := cfg.GetDeviceIndices()
	got[0] = 9
	assert.Equal(t, []uint32{2, 3}, cfg.DeviceIndices)
}

func TestLoadTrackingConfig_FileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadTrackingConfig(filepath.Join(dir, "tracking.yaml"))
	assert.ErrorContains(t, err, ".json extension")

	_, err = LoadTrackingConfig(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "failed to stat")

	big := writeConfig(t, "big.json", strings.Repeat(" ", 1024*1024+1))
	_, err = LoadTrackingConfig(big)
	assert.ErrorContains(t, err, "too large")

	bad := writeConfig(t, "bad.json", `{"invert_x": "yes"}`)
	_, err = LoadTrackingConfig(bad)
	assert.ErrorContains(t, err, "failed to parse")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"bad interval", `{"sample_interval": "fast"}`, "invalid sample_interval"},
		{"zero interval", `{"sample_interval": "0s"}`, "must be positive"},
		{"unknown source", `{"source": "openvr"}`, "unknown source"},
		{"fixture without path", `{"source": "fixture"}`, "fixture_path is required"},
		{"too many devices", `{"synthetic_devices": 65}`, "synthetic_devices must be between"},
		{"no devices", `{"synthetic_devices": 0}`, "synthetic_devices must be between"},
		{"index out of range", `{"synthetic_devices": 2, "device_indices": [0, 2]}`, "device index 2 out of range"},
		{"negative radius", `{"synthetic_radius": -1}`, "synthetic_radius must be non-negative"},
		{"bad period", `{"synthetic_period": "-3s"}`, "synthetic_period must be positive"},
		{"record_every", `{"record_every": 0}`, "record_every must be at least 1"},
		{"serial parity", `{"serial": {"parity": "mark"}}`, "invalid serial options"},
		{"serial stop bits", `{"serial": {"stop_bits": 3}}`, "invalid serial options"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "tracking.json", tt.body)
			_, err := LoadTrackingConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_FixtureSourceSkipsSyntheticIndexCheck(t *testing.T) {
	path := writeConfig(t, "tracking.json", `{
		"source": "fixture",
		"fixture_path": "poses.json",
		"device_indices": [40]
	}`)
	cfg, err := LoadTrackingConfig(path)
	require.NoError(t, err)
	assert.Equal(t, SourceFixture, cfg.GetSource())
	assert.Equal(t, "poses.json", cfg.GetFixturePath())
}

func TestParseDurationOr(t *testing.T) {
	bad := "nope"
	empty := ""
	ok := "250ms"
	assert.Equal(t, time.Second, parseDurationOr(nil, time.Second))
	assert.Equal(t, time.Second, parseDurationOr(&empty, time.Second))
	assert.Equal(t, time.Second, parseDurationOr(&bad, time.Second))
	assert.Equal(t, 250*time.Millisecond, parseDurationOr(&ok, time.Second))
}
