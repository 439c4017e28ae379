package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/soocke/framering-go/domain/capture"
)

// Config holds runtime configuration for capture sessions and the app.
// Fields may be loaded from a JSON file and overridden by flags and
// environment variables (see Overlay).
type Config struct {
	Debug     bool   `json:"debug"`
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	// Capture options
	BufferSeconds      float64 `json:"buffer_seconds"`
	MemoryBudgetMB     int     `json:"memory_budget_mb"`
	TargetFPS          int     `json:"target_fps"`
	StagingSlots       int     `json:"staging_slots"`
	ReadbackWorkers    int     `json:"readback_workers"`
	HardCeilingFactor  float64 `json:"hard_ceiling_factor"`
	IncludeCursor      bool    `json:"include_cursor"`
	BorderRequired     bool    `json:"border_required"`
	KeepFramesOnResize bool    `json:"keep_frames_on_resize"`

	// Target selection. Window wins over Monitor when both are set; Synthetic
	// ignores both.
	Monitor         uint64 `json:"monitor"`
	Window          uint64 `json:"window"`
	Synthetic       bool   `json:"synthetic"`
	SyntheticWidth  int    `json:"synthetic_width"`
	SyntheticHeight int    `json:"synthetic_height"`

	// MetricsAddr enables the HTTP metrics endpoint when non-empty.
	MetricsAddr string `json:"metrics_addr"`

	// Preview window size
	PreviewWidth  int `json:"preview_width"`
	PreviewHeight int `json:"preview_height"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	o := capture.DefaultOptions()
	return &Config{
		Debug:             false,
		LogLevel:          "info",
		LogFormat:         "json",
		BufferSeconds:     o.BufferSeconds,
		MemoryBudgetMB:    o.MemoryBudgetMB,
		TargetFPS:         o.TargetFPS,
		StagingSlots:      o.StagingSlots,
		ReadbackWorkers:   o.ReadbackWorkers,
		HardCeilingFactor: o.HardCeilingFactor,
		SyntheticWidth:    640,
		SyntheticHeight:   360,
		PreviewWidth:      800,
		PreviewHeight:     600,
	}
}

// CaptureOptions returns the capture options carried by c.
func (c *Config) CaptureOptions() capture.Options {
	return capture.Options{
		BufferSeconds:      c.BufferSeconds,
		MemoryBudgetMB:     c.MemoryBudgetMB,
		TargetFPS:          c.TargetFPS,
		StagingSlots:       c.StagingSlots,
		ReadbackWorkers:    c.ReadbackWorkers,
		HardCeilingFactor:  c.HardCeilingFactor,
		IncludeCursor:      c.IncludeCursor,
		BorderRequired:     c.BorderRequired,
		KeepFramesOnResize: c.KeepFramesOnResize,
	}
}

// Validate clamps presentation settings to safe values and reports invalid
// capture options. Capture options are never clamped: a non-positive budget
// or frame rate is a configuration error.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = "info"
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		c.LogFormat = "json"
	} else {
		c.LogFormat = f
	}
	if c.SyntheticWidth <= 0 {
		c.SyntheticWidth = 640
	}
	if c.SyntheticHeight <= 0 {
		c.SyntheticHeight = 360
	}
	if c.PreviewWidth < 200 {
		c.PreviewWidth = 200
	}
	if c.PreviewHeight < 150 {
		c.PreviewHeight = 150
	}
	if err := c.CaptureOptions().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Load attempts to read configuration from the given JSON file path. If the file does not
// exist it returns DefaultConfig(). On JSON or validation error it returns the
// config with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
