package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/arpets/internal/placement"
	"github.com/banshee-data/arpets/internal/scene"
)

// DefaultConfigPath is the path to the canonical placement defaults file.
const DefaultConfigPath = "config/placement.defaults.json"

// PlacementConfig is the root configuration for a placement session. Every
// field is optional; the Get* methods supply defaults for omitted values.
type PlacementConfig struct {
	// Policy params
	Strategy     *string  `json:"strategy,omitempty"`
	OffsetX      *float64 `json:"offset_x,omitempty"`
	OffsetY      *float64 `json:"offset_y,omitempty"`
	OffsetZ      *float64 `json:"offset_z,omitempty"`
	MoveDuration *string  `json:"move_duration,omitempty"` // duration string like "100ms"
	Timing       *string  `json:"timing,omitempty"`
	AssetID      *string  `json:"asset_id,omitempty"`

	// Replay params
	FrameInterval *string `json:"frame_interval,omitempty"`

	// Outputs
	JournalPath  *string `json:"journal_path,omitempty"`
	ExportDir    *string `json:"export_dir,omitempty"`
	CaptureEvery *int    `json:"capture_every,omitempty"`
}

// EnvOverrides are the settings that may be overridden from the environment.
// Unset variables leave the file values alone.
type EnvOverrides struct {
	Strategy    string `env:"ARPETS_STRATEGY"`
	AssetID     string `env:"ARPETS_ASSET_ID"`
	JournalPath string `env:"ARPETS_JOURNAL_PATH"`
	ExportDir   string `env:"ARPETS_EXPORT_DIR"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyPlacementConfig returns a PlacementConfig with all fields set to nil.
func EmptyPlacementConfig() *PlacementConfig {
	return &PlacementConfig{}
}

// DefaultPlacementConfig returns a PlacementConfig with every field set to
// its default.
func DefaultPlacementConfig() *PlacementConfig {
	return &PlacementConfig{
		Strategy:      ptrString(placement.CameraFollow.String()),
		OffsetX:       ptrFloat64(placement.DefaultOffset.X),
		OffsetY:       ptrFloat64(placement.DefaultOffset.Y),
		OffsetZ:       ptrFloat64(placement.DefaultOffset.Z),
		MoveDuration:  ptrString(placement.DefaultMoveDuration.String()),
		Timing:        ptrString(scene.Linear.String()),
		AssetID:       ptrString(placement.DefaultAssetID),
		FrameInterval: ptrString(defaultFrameInterval.String()),
		JournalPath:   ptrString(""),
		ExportDir:     ptrString(""),
		CaptureEvery:  ptrInt(0),
	}
}

const defaultFrameInterval = 16 * time.Millisecond

// LoadPlacementConfig loads a PlacementConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file fall back to the Get* defaults, so partial configs are safe.
func LoadPlacementConfig(path string) (*PlacementConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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

	cfg := EmptyPlacementConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching upwards from the current directory. Panics if the file cannot be
// loaded, intended for test setup.
func MustLoadDefaultConfig() *PlacementConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/gen-trace/
	}
	for _, path := range candidates {
		if cfg, err := LoadPlacementConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// ApplyEnv overlays ARPETS_* environment variables onto c and re-validates.
func (c *PlacementConfig) ApplyEnv() error {
	var o EnvOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.Strategy != "" {
		c.Strategy = ptrString(o.Strategy)
	}
	if o.AssetID != "" {
		c.AssetID = ptrString(o.AssetID)
	}
	if o.JournalPath != "" {
		c.JournalPath = ptrString(o.JournalPath)
	}
	if o.ExportDir != "" {
		c.ExportDir = ptrString(o.ExportDir)
	}
	return c.Validate()
}

// Validate checks that the configuration values are valid.
func (c *PlacementConfig) Validate() error {
	if c.Strategy != nil {
		if _, err := placement.ParseStrategy(*c.Strategy); err != nil {
			return err
		}
	}
	if c.Timing != nil {
		if _, err := scene.ParseTiming(*c.Timing); err != nil {
			return err
		}
	}

	if c.MoveDuration != nil && *c.MoveDuration != "" {
		d, err := time.ParseDuration(*c.MoveDuration)
		if err != nil {
			return fmt.Errorf("invalid move_duration '%s': %w", *c.MoveDuration, err)
		}
		if d < 0 {
			return fmt.Errorf("move_duration must be non-negative, got %s", d)
		}
	}

	if c.FrameInterval != nil && *c.FrameInterval != "" {
		d, err := time.ParseDuration(*c.FrameInterval)
		if err != nil {
			return fmt.Errorf("invalid frame_interval '%s': %w", *c.FrameInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("frame_interval must be non-negative, got %s", d)
		}
	}

	if c.AssetID != nil && *c.AssetID == "" {
		return fmt.Errorf("asset_id must not be empty")
	}

	if c.CaptureEvery != nil && *c.CaptureEvery < 0 {
		return fmt.Errorf("capture_every must be non-negative, got %d", *c.CaptureEvery)
	}

	return nil
}

// GetStrategy returns the placement strategy or the default.
func (c *PlacementConfig) GetStrategy() placement.Strategy {
	if c.Strategy == nil {
		return placement.CameraFollow
	}
	s, err := placement.ParseStrategy(*c.Strategy)
	if err != nil {
		return placement.CameraFollow
	}
	return s
}

// GetOffset returns the world-space offset from the camera.
func (c *PlacementConfig) GetOffset() r3.Vec {
	off := placement.DefaultOffset
	if c.OffsetX != nil {
		off.X = *c.OffsetX
	}
	if c.OffsetY != nil {
		off.Y = *c.OffsetY
	}
	if c.OffsetZ != nil {
		off.Z = *c.OffsetZ
	}
	return off
}

// GetMoveDuration parses and returns MoveDuration.
func (c *PlacementConfig) GetMoveDuration() time.Duration {
	if c.MoveDuration == nil || *c.MoveDuration == "" {
		return placement.DefaultMoveDuration
	}
	d, err := time.ParseDuration(*c.MoveDuration)
	if err != nil {
		return placement.DefaultMoveDuration
	}
	return d
}

// GetTiming returns the move timing function or the default.
func (c *PlacementConfig) GetTiming() scene.Timing {
	if c.Timing == nil {
		return scene.Linear
	}
	t, err := scene.ParseTiming(*c.Timing)
	if err != nil {
		return scene.Linear
	}
	return t
}

// GetAssetID returns the asset id or the default.
func (c *PlacementConfig) GetAssetID() string {
	if c.AssetID == nil || *c.AssetID == "" {
		return placement.DefaultAssetID
	}
	return *c.AssetID
}

// GetFrameInterval parses and returns FrameInterval.
func (c *PlacementConfig) GetFrameInterval() time.Duration {
	if c.FrameInterval == nil || *c.FrameInterval == "" {
		return defaultFrameInterval
	}
	d, err := time.ParseDuration(*c.FrameInterval)
	if err != nil {
		return defaultFrameInterval
	}
	return d
}

// GetJournalPath returns the journal path; empty disables journalling.
func (c *PlacementConfig) GetJournalPath() string {
	if c.JournalPath == nil {
		return ""
	}
	return *c.JournalPath
}

// GetExportDir returns the capture directory; empty disables captures.
func (c *PlacementConfig) GetExportDir() string {
	if c.ExportDir == nil {
		return ""
	}
	return *c.ExportDir
}

// GetCaptureEvery returns how many tracking events pass between automatic
// capture requests; zero disables them.
func (c *PlacementConfig) GetCaptureEvery() int {
	if c.CaptureEvery == nil {
		return 0
	}
	return *c.CaptureEvery
}

// Placement converts the file settings into a policy configuration.
func (c *PlacementConfig) Placement() placement.Config {
	return placement.Config{
		Strategy:     c.GetStrategy(),
		Offset:       c.GetOffset(),
		MoveDuration: c.GetMoveDuration(),
		Timing:       c.GetTiming(),
		AssetID:      c.GetAssetID(),
	}
}
