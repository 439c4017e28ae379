package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. FRAMERING_TARGET_FPS.
const EnvPrefix = "FRAMERING"

// LoadEnv reads .env style files into the process environment. With no
// paths, ".env" is used. A missing file is an error callers may ignore.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// NewViper returns a viper instance reading FRAMERING_* environment
// variables. Flags are bound by the caller.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Overlay copies every key set in v (flag or environment) onto cfg. Keys are
// the JSON field names with dashes or underscores.
func Overlay(cfg *Config, v *viper.Viper) {
	str := func(key string, dst *string) {
		if k, ok := lookup(v, key); ok {
			*dst = v.GetString(k)
		}
	}
	boolean := func(key string, dst *bool) {
		if k, ok := lookup(v, key); ok {
			*dst = v.GetBool(k)
		}
	}
	integer := func(key string, dst *int) {
		if k, ok := lookup(v, key); ok {
			*dst = v.GetInt(k)
		}
	}
	uinteger := func(key string, dst *uint64) {
		if k, ok := lookup(v, key); ok {
			*dst = v.GetUint64(k)
		}
	}
	float := func(key string, dst *float64) {
		if k, ok := lookup(v, key); ok {
			*dst = v.GetFloat64(k)
		}
	}

	boolean("debug", &cfg.Debug)
	str("log_level", &cfg.LogLevel)
	str("log_format", &cfg.LogFormat)

	float("buffer_seconds", &cfg.BufferSeconds)
	integer("memory_budget_mb", &cfg.MemoryBudgetMB)
	integer("target_fps", &cfg.TargetFPS)
	integer("staging_slots", &cfg.StagingSlots)
	integer("readback_workers", &cfg.ReadbackWorkers)
	float("hard_ceiling_factor", &cfg.HardCeilingFactor)
	boolean("include_cursor", &cfg.IncludeCursor)
	boolean("border_required", &cfg.BorderRequired)
	boolean("keep_frames_on_resize", &cfg.KeepFramesOnResize)

	uinteger("monitor", &cfg.Monitor)
	uinteger("window", &cfg.Window)
	boolean("synthetic", &cfg.Synthetic)
	integer("synthetic_width", &cfg.SyntheticWidth)
	integer("synthetic_height", &cfg.SyntheticHeight)

	str("metrics_addr", &cfg.MetricsAddr)
	integer("preview_width", &cfg.PreviewWidth)
	integer("preview_height", &cfg.PreviewHeight)
}

// lookup finds key in v under its underscore or dash spelling.
func lookup(v *viper.Viper, key string) (string, bool) {
	if v.IsSet(key) {
		return key, true
	}
	dashed := strings.ReplaceAll(key, "_", "-")
	if v.IsSet(dashed) {
		return dashed, true
	}
	return "", false
}
