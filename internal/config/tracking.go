package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/trackpose/internal/pose"
	"github.com/banshee-data/trackpose/internal/posemux"
)

// Source names accepted in the "source" field.
const (
	SourceSynthetic = "synthetic"
	SourceFixture   = "fixture"
)

// Defaults applied by the Get* accessors when a field is omitted.
const (
	DefaultSampleInterval   = 10 * time.Millisecond
	DefaultListen           = ":8080"
	DefaultSyntheticDevices = 2
	DefaultSyntheticRadius  = 1.5
	DefaultSyntheticPeriod  = 8 * time.Second
	DefaultRecordEvery      = 1

	maxSyntheticDevices = 64
)

// TrackingConfig is the JSON configuration for the trackpose service.
// Every field is optional; omitted fields fall back to the defaults above, so
// partial configs are safe.
type TrackingConfig struct {
	// Axis corrections applied to every device
	InvertX *bool `json:"invert_x,omitempty"`
	InvertZ *bool `json:"invert_z,omitempty"`
	FlipXZ  *bool `json:"flip_xz,omitempty"`

	// Devices to sample, in output order. Duplicates are allowed.
	DeviceIndices []uint32 `json:"device_indices,omitempty"`

	SampleInterval *string `json:"sample_interval,omitempty"` // duration string like "10ms"

	// Pose source
	Source           *string  `json:"source,omitempty"`
	FixturePath      *string  `json:"fixture_path,omitempty"`
	SyntheticDevices *int     `json:"synthetic_devices,omitempty"`
	SyntheticRadius  *float64 `json:"synthetic_radius,omitempty"`
	SyntheticPeriod  *string  `json:"synthetic_period,omitempty"` // duration of one orbit

	// Outputs
	Listen      *string              `json:"listen,omitempty"`
	DBPath      *string              `json:"db_path,omitempty"` // empty disables recording
	RecordEvery *int                 `json:"record_every,omitempty"`
	SerialPort  *string              `json:"serial_port,omitempty"` // empty disables the serial sink
	Serial      *posemux.PortOptions `json:"serial,omitempty"`
}

// Helper functions to create pointers
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrFloat64(v float64) *float64 { return &v }

// DefaultTrackingConfig returns a config with every field populated with its
// default value.
func DefaultTrackingConfig() *TrackingConfig {
	return &TrackingConfig{
		InvertX:          ptrBool(false),
		InvertZ:          ptrBool(false),
		FlipXZ:           ptrBool(false),
		DeviceIndices:    []uint32{0},
		SampleInterval:   ptrString(DefaultSampleInterval.String()),
		Source:           ptrString(SourceSynthetic),
		SyntheticDevices: ptrInt(DefaultSyntheticDevices),
		SyntheticRadius:  ptrFloat64(DefaultSyntheticRadius),
		SyntheticPeriod:  ptrString(DefaultSyntheticPeriod.String()),
		Listen:           ptrString(DefaultListen),
		DBPath:           ptrString(""),
		RecordEvery:      ptrInt(DefaultRecordEvery),
		SerialPort:       ptrString(""),
	}
}

// LoadTrackingConfig loads a TrackingConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadTrackingConfig(path string) (*TrackingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TrackingConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TrackingConfig) Validate() error {
	if c.SampleInterval != nil && *c.SampleInterval != "" {
		d, err := time.ParseDuration(*c.SampleInterval)
		if err != nil {
			return fmt.Errorf("invalid sample_interval '%s': %w", *c.SampleInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("sample_interval must be positive, got %s", d)
		}
	}

	switch src := c.GetSource(); src {
	case SourceSynthetic:
		n := c.GetSyntheticDevices()
		if n < 1 || n > maxSyntheticDevices {
			return fmt.Errorf("synthetic_devices must be between 1 and %d, got %d", maxSyntheticDevices, n)
		}
		for _, idx := range c.GetDeviceIndices() {
			if int(idx) >= n {
				return fmt.Errorf("device index %d out of range for %d synthetic devices", idx, n)
			}
		}
	case SourceFixture:
		if c.GetFixturePath() == "" {
			return fmt.Errorf("fixture_path is required when source is %q", SourceFixture)
		}
	default:
		return fmt.Errorf("unknown source %q: expected %q or %q", src, SourceSynthetic, SourceFixture)
	}

	if c.SyntheticRadius != nil && *c.SyntheticRadius < 0 {
		return fmt.Errorf("synthetic_radius must be non-negative, got %f", *c.SyntheticRadius)
	}

	if c.SyntheticPeriod != nil && *c.SyntheticPeriod != "" {
		d, err := time.ParseDuration(*c.SyntheticPeriod)
		if err != nil {
			return fmt.Errorf("invalid synthetic_period '%s': %w", *c.SyntheticPeriod, err)
		}
		if d <= 0 {
			return fmt.Errorf("synthetic_period must be positive, got %s", d)
		}
	}

	if c.RecordEvery != nil && *c.RecordEvery < 1 {
		return fmt.Errorf("record_every must be at least 1, got %d", *c.RecordEvery)
	}

	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("invalid serial options: %w", err)
		}
	}

	return nil
}

// AxisConfig returns the axis corrections as the value passed to the sampler.
func (c *TrackingConfig) AxisConfig() pose.AxisConfig {
	return pose.AxisConfig{
		InvertX: c.GetInvertX(),
		InvertZ: c.GetInvertZ(),
		FlipXZ:  c.GetFlipXZ(),
	}
}

// GetInvertX returns the invert_x value or the default.
func (c *TrackingConfig) GetInvertX() bool {
	if c.InvertX == nil {
		return false // default
	}
	return *c.InvertX
}

// GetInvertZ returns the invert_z value or the default.
func (c *TrackingConfig) GetInvertZ() bool {
	if c.InvertZ == nil {
		return false // default
	}
	return *c.InvertZ
}

// GetFlipXZ returns the flip_xz value or the default.
func (c *TrackingConfig) GetFlipXZ() bool {
	if c.FlipXZ == nil {
		return false // default
	}
	return *c.FlipXZ
}

// GetDeviceIndices returns a copy of device_indices, or [0] when unset.
func (c *TrackingConfig) GetDeviceIndices() []uint32 {
	if len(c.DeviceIndices) == 0 {
		return []uint32{0}
	}
	return append([]uint32(nil), c.DeviceIndices...)
}

// GetSampleInterval parses and returns the SampleInterval as a time.Duration.
func (c *TrackingConfig) GetSampleInterval() time.Duration {
	return parseDurationOr(c.SampleInterval, DefaultSampleInterval)
}

// GetSource returns the pose source name or the default.
func (c *TrackingConfig) GetSource() string {
	if c.Source == nil || *c.Source == "" {
		return SourceSynthetic
	}
	return *c.Source
}

// GetFixturePath returns the fixture_path value or "".
func (c *TrackingConfig) GetFixturePath() string {
	if c.FixturePath == nil {
		return ""
	}
	return *c.FixturePath
}

// GetSyntheticDevices returns the synthetic_devices value or the default.
func (c *TrackingConfig) GetSyntheticDevices() int {
	if c.SyntheticDevices == nil {
		return DefaultSyntheticDevices
	}
	return *c.SyntheticDevices
}

// GetSyntheticRadius returns the synthetic_radius value or the default.
func (c *TrackingConfig) GetSyntheticRadius() float64 {
	if c.SyntheticRadius == nil {
		return DefaultSyntheticRadius
	}
	return *c.SyntheticRadius
}

// GetSyntheticPeriod parses and returns the SyntheticPeriod as a time.Duration.
func (c *TrackingConfig) GetSyntheticPeriod() time.Duration {
	return parseDurationOr(c.SyntheticPeriod, DefaultSyntheticPeriod)
}

// GetListen returns the listen address or the default.
func (c *TrackingConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

// GetDBPath returns the recorder database path; "" disables recording.
func (c *TrackingConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetRecordEvery returns the record_every value or the default.
func (c *TrackingConfig) GetRecordEvery() int {
	if c.RecordEvery == nil {
		return DefaultRecordEvery
	}
	return *c.RecordEvery
}

// GetSerialPort returns the serial sink device path; "" disables the sink.
func (c *TrackingConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetSerial returns the serial options, or the zero value (defaults applied
// by PortOptions.Normalize).
func (c *TrackingConfig) GetSerial() posemux.PortOptions {
	if c.Serial == nil {
		return posemux.PortOptions{}
	}
	return *c.Serial
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def // default on parse error
	}
	return d
}
