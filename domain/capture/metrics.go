package capture

import "time"

// Stats summarises session behaviour for instrumentation.
type Stats struct {
	Ring RingStats

	FramesArrived uint64
	FramesCopied  uint64

	// Drop reasons on the arrival and readback paths. Ring-side drops live in
	// Ring.
	DroppedPoolExhausted uint64
	DroppedQueueFull     uint64
	DroppedCopyFailed    uint64
	DroppedStale         uint64

	Resizes       uint64
	InFlight      int
	AvgReadback   time.Duration
	OpenSnapshots int
}

// Dropped returns the total number of frames that arrived but were never
// committed.
func (s Stats) Dropped() uint64 {
	return s.DroppedPoolExhausted +
		s.DroppedQueueFull +
		s.DroppedCopyFailed +
		s.DroppedStale +
		s.Ring.DroppedOutOfOrder +
		s.Ring.DroppedOversize +
		s.Ring.DroppedCeiling +
		s.Ring.DroppedStale
}

func (p *pipeline) snapshotStats() Stats {
	return Stats{
		Ring:                 p.ring.Stats(),
		FramesArrived:        p.stats.arrived.Load(),
		FramesCopied:         p.stats.copied.Load(),
		DroppedPoolExhausted: p.stats.poolExhausted.Load(),
		DroppedQueueFull:     p.stats.queueFull.Load(),
		DroppedCopyFailed:    p.stats.copyFailed.Load(),
		DroppedStale:         p.stats.stale.Load(),
		Resizes:              p.stats.resizes.Load(),
		InFlight:             p.inFlight(),
		AvgReadback:          p.avgReadback(),
	}
}
