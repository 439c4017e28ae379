package capture

import (
	"fmt"
	"math"
	"time"
)

// Defaults applied by DefaultOptions and to zero-valued tuning fields.
const (
	DefaultBufferSeconds     = 2.0
	DefaultMemoryBudgetMB    = 512
	DefaultTargetFPS         = 30
	DefaultStagingSlots      = 3
	DefaultReadbackWorkers   = 1
	DefaultHardCeilingFactor = 2.0
)

// Options configures a capture stream and the sessions it creates.
type Options struct {
	// BufferSeconds is the retention window of the ring (soft target).
	BufferSeconds float64 `json:"buffer_seconds"`
	// MemoryBudgetMB bounds the bytes retained by the ring.
	MemoryBudgetMB int `json:"memory_budget_mb"`
	// TargetFPS is the rate sources are asked to deliver frames at.
	TargetFPS int `json:"target_fps"`

	// StagingSlots is the fixed number of readback buffers per session.
	StagingSlots int `json:"staging_slots"`
	// ReadbackWorkers is the number of goroutines completing copies. More than
	// one worker may commit out of order; such frames are dropped by the ring.
	ReadbackWorkers int `json:"readback_workers"`
	// HardCeilingFactor multiplies the budget to get the ceiling beyond which
	// commits are dropped while frames are pinned.
	HardCeilingFactor float64 `json:"hard_ceiling_factor"`

	IncludeCursor  bool `json:"include_cursor"`
	BorderRequired bool `json:"border_required"`

	// KeepFramesOnResize keeps frames of the previous size in the ring when
	// the target is resized. By default the ring is flushed.
	KeepFramesOnResize bool `json:"keep_frames_on_resize"`
}

// DefaultOptions returns 2 seconds of history, a 512 MB budget at 30 fps.
func DefaultOptions() Options {
	return Options{
		BufferSeconds:     DefaultBufferSeconds,
		MemoryBudgetMB:    DefaultMemoryBudgetMB,
		TargetFPS:         DefaultTargetFPS,
		StagingSlots:      DefaultStagingSlots,
		ReadbackWorkers:   DefaultReadbackWorkers,
		HardCeilingFactor: DefaultHardCeilingFactor,
	}
}

// Validate reports the first invalid field wrapped in ErrInvalidConfiguration.
// Zero tuning fields (slots, workers, ceiling) are valid and mean "default".
func (o Options) Validate() error {
	switch {
	case math.IsNaN(o.BufferSeconds) || math.IsInf(o.BufferSeconds, 0) || o.BufferSeconds <= 0:
		return fmt.Errorf("%w: buffer_seconds must be > 0 (got %v)", ErrInvalidConfiguration, o.BufferSeconds)
	case o.MemoryBudgetMB <= 0:
		return fmt.Errorf("%w: memory_budget_mb must be > 0 (got %d)", ErrInvalidConfiguration, o.MemoryBudgetMB)
	case o.TargetFPS <= 0:
		return fmt.Errorf("%w: target_fps must be > 0 (got %d)", ErrInvalidConfiguration, o.TargetFPS)
	case o.StagingSlots < 0:
		return fmt.Errorf("%w: staging_slots must be >= 0 (got %d)", ErrInvalidConfiguration, o.StagingSlots)
	case o.ReadbackWorkers < 0:
		return fmt.Errorf("%w: readback_workers must be >= 0 (got %d)", ErrInvalidConfiguration, o.ReadbackWorkers)
	case o.HardCeilingFactor != 0 && (math.IsNaN(o.HardCeilingFactor) || o.HardCeilingFactor < 1):
		return fmt.Errorf("%w: hard_ceiling_factor must be >= 1 (got %v)", ErrInvalidConfiguration, o.HardCeilingFactor)
	}
	return nil
}

// withDefaults fills zero tuning fields.
func (o Options) withDefaults() Options {
	if o.StagingSlots == 0 {
		o.StagingSlots = DefaultStagingSlots
	}
	if o.ReadbackWorkers == 0 {
		o.ReadbackWorkers = DefaultReadbackWorkers
	}
	if o.HardCeilingFactor == 0 {
		o.HardCeilingFactor = DefaultHardCeilingFactor
	}
	return o
}

// Window returns BufferSeconds as a duration.
func (o Options) Window() time.Duration {
	return time.Duration(o.BufferSeconds * float64(time.Second))
}

// BudgetBytes returns MemoryBudgetMB in bytes.
func (o Options) BudgetBytes() int64 { return int64(o.MemoryBudgetMB) * 1024 * 1024 }

// FrameInterval returns the delivery period implied by TargetFPS.
func (o Options) FrameInterval() time.Duration {
	if o.TargetFPS <= 0 {
		return time.Second / DefaultTargetFPS
	}
	return time.Second / time.Duration(o.TargetFPS)
}
