package capture

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/sourcegraph/conc"

	"github.com/soocke/framering-go/domain/gpu"
)

// completion is an in-flight copy waiting for its fence.
type completion struct {
	slot   *stagingSlot
	fence  gpu.Fence
	ts     time.Duration
	width  int
	height int
	format gputypes.TextureFormat
	gen    uint64
}

// pipelineStats are the readback counters of one session.
type pipelineStats struct {
	arrived       atomic.Uint64
	copied        atomic.Uint64
	poolExhausted atomic.Uint64
	queueFull     atomic.Uint64
	copyFailed    atomic.Uint64
	stale         atomic.Uint64
	resizes       atomic.Uint64
	readbackNanos atomic.Uint64
	readbacks     atomic.Uint64
}

// pipeline turns frame-arrival callbacks into committed frames. The arrival
// path never blocks on the GPU: it acquires a staging slot without waiting,
// issues the copy and queues the fence. Workers wait on fences, map, copy out
// and commit to the ring.
type pipeline struct {
	logger  *slog.Logger
	device  gpu.Device
	ring    *Ring
	opts    Options
	onFatal func(error)

	// mu serialises arrivals against resize and close. Arrivals take the read
	// lock except when a resize swaps the pool.
	mu     sync.RWMutex
	closed bool
	pool   atomic.Pointer[StagingPool]
	queue  chan completion

	workers   conc.WaitGroup
	abandoned sync.WaitGroup
	stopping  atomic.Bool
	done      chan struct{}

	stats pipelineStats
}

func newPipeline(logger *slog.Logger, device gpu.Device, ring *Ring, opts Options, onFatal func(error)) *pipeline {
	return &pipeline{
		logger:  logger,
		device:  device,
		ring:    ring,
		opts:    opts,
		onFatal: onFatal,
		queue:   make(chan completion, 2*opts.StagingSlots),
		done:    make(chan struct{}),
	}
}

// start launches the readback workers.
func (p *pipeline) start() {
	for i := 0; i < p.opts.ReadbackWorkers; i++ {
		p.workers.Go(p.work)
	}
}

// prepare creates the staging pool ahead of the first frame when the source
// size is known.
func (p *pipeline) prepare(width, height int, format gputypes.TextureFormat) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	pool, err := NewStagingPool(p.logger, p.device, p.opts.StagingSlots, width, height, format)
	if err != nil {
		return err
	}
	p.pool.Store(pool)
	return nil
}

// OnFrameArrived is the frame handler given to sources. It must not block.
func (p *pipeline) OnFrameArrived(tex gpu.Texture, ts time.Duration, width, height int) {
	p.stats.arrived.Add(1)
	format := tex.Format()

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return
	}
	pool := p.pool.Load()
	if pool == nil || !pool.Matches(width, height, format) {
		p.mu.RUnlock()
		if !p.resize(width, height, format) {
			return
		}
		p.mu.RLock()
		if p.closed {
			p.mu.RUnlock()
			return
		}
		pool = p.pool.Load()
	}
	defer p.mu.RUnlock()

	slot, ok := pool.TryAcquire()
	if !ok {
		p.stats.poolExhausted.Add(1)
		return
	}
	fence, err := p.device.CopyTextureToBuffer(tex, slot.buf, pool.Stride())
	if err != nil {
		pool.Release(slot)
		p.stats.copyFailed.Add(1)
		if errors.Is(err, gpu.ErrDeviceLost) {
			go p.onFatal(err)
			return
		}
		p.logger.Warn("readback.copy", "error", err, "ts", ts)
		return
	}
	// Read under p.mu: a resize flushes the ring while holding it exclusively.
	gen := p.ring.Generation()
	c := completion{slot: slot, fence: fence, ts: ts, width: width, height: height, format: format, gen: gen}
	select {
	case p.queue <- c:
	default:
		p.stats.queueFull.Add(1)
		p.abandon(c)
	}
}

// resize swaps in a pool for the new size and retires the old one. It
// reports false when the pipeline closed or the new pool could not be built.
func (p *pipeline) resize(width, height int, format gputypes.TextureFormat) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	old := p.pool.Load()
	if old != nil && old.Matches(width, height, format) {
		return true
	}
	pool, err := NewStagingPool(p.logger, p.device, p.opts.StagingSlots, width, height, format)
	if err != nil {
		p.stats.copyFailed.Add(1)
		if errors.Is(err, gpu.ErrDeviceLost) {
			go p.onFatal(err)
		} else {
			p.logger.Error("readback.resize", "error", err, "width", width, "height", height)
		}
		return false
	}
	p.pool.Store(pool)
	if old == nil {
		return true
	}
	old.Retire()
	p.stats.resizes.Add(1)
	if !p.opts.KeepFramesOnResize {
		p.ring.Flush()
	}
	p.logger.Info("readback.resize",
		"width", width,
		"height", height,
		"format", gpu.FormatName(format),
		"keep_frames", p.opts.KeepFramesOnResize,
	)
	return true
}

// abandon waits for a copy that could not be queued so its slot can be
// reused. The frame is dropped.
func (p *pipeline) abandon(c completion) {
	p.abandoned.Add(1)
	go func() {
		defer p.abandoned.Done()
		<-c.fence.Done()
		c.slot.pool.Release(c.slot)
	}()
}

func (p *pipeline) work() {
	for c := range p.queue {
		p.complete(c)
	}
}

func (p *pipeline) complete(c completion) {
	<-c.fence.Done()
	pool := c.slot.pool
	if err := c.fence.Err(); err != nil {
		pool.Release(c.slot)
		p.stats.copyFailed.Add(1)
		if errors.Is(err, gpu.ErrDeviceLost) {
			p.onFatal(err)
			return
		}
		p.logger.Warn("readback.fence", "error", err, "ts", c.ts)
		return
	}
	if p.stopping.Load() || (pool.Retired() && !p.opts.KeepFramesOnResize) {
		pool.Release(c.slot)
		p.stats.stale.Add(1)
		return
	}

	start := time.Now()
	c.slot.state.Store(int32(slotMapped))
	mapped, err := p.device.MapRead(c.slot.buf)
	if err != nil {
		pool.Release(c.slot)
		p.stats.copyFailed.Add(1)
		if errors.Is(err, gpu.ErrDeviceLost) {
			p.onFatal(err)
			return
		}
		p.logger.Warn("readback.map", "error", err, "ts", c.ts)
		return
	}
	stride := pool.Stride()
	n := stride * c.height
	data := acquireBuffer(n)
	copy(data, mapped[:n])
	p.device.Unmap(c.slot.buf)
	pool.Release(c.slot)

	p.stats.readbackNanos.Add(uint64(time.Since(start).Nanoseconds()))
	p.stats.readbacks.Add(1)
	p.stats.copied.Add(1)
	f := newFrame(c.ts, c.width, c.height, stride, c.format, data)
	f.gen = c.gen
	p.ring.Commit(f)
}

// close stops accepting arrivals. Queued completions already signalled are
// released without committing. Done is closed once every worker and
// abandoned copy has finished and all staging buffers are destroyed.
func (p *pipeline) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.stopping.Store(true)
	close(p.queue)
	p.mu.Unlock()

	go func() {
		if r := p.workers.WaitAndRecover(); r != nil {
			p.logger.Error("readback worker panic", "value", r.Value, "stack", string(r.Stack))
		}
		p.abandoned.Wait()
		if pool := p.pool.Load(); pool != nil {
			pool.Retire()
		}
		close(p.done)
	}()
}

// inFlight returns the number of staging slots of the current pool that are
// acquired and not yet released.
func (p *pipeline) inFlight() int {
	pool := p.pool.Load()
	if pool == nil {
		return 0
	}
	return pool.InFlight()
}

func (p *pipeline) avgReadback() time.Duration {
	n := p.stats.readbacks.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(p.stats.readbackNanos.Load() / n)
}
