package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/soocke/framering-go/domain/gpu"
)

type slotState int32

const (
	slotFree slotState = iota
	slotInFlight
	slotMapped
)

func (s slotState) String() string {
	switch s {
	case slotFree:
		return "free"
	case slotInFlight:
		return "in_flight"
	case slotMapped:
		return "mapped"
	default:
		return "unknown"
	}
}

// stagingSlot is one readback buffer of a StagingPool.
type stagingSlot struct {
	id    int
	buf   gpu.StagingBuffer
	pool  *StagingPool
	state atomic.Int32
}

func (s *stagingSlot) State() slotState { return slotState(s.state.Load()) }

// StagingPool is a fixed set of CPU-mappable buffers sized for one capture
// resolution. TryAcquire never blocks: exhaustion is reported to the caller,
// which drops the frame. The pool never grows.
type StagingPool struct {
	device gpu.Device
	logger *slog.Logger
	width  int
	height int
	stride int
	format gputypes.TextureFormat

	free  chan *stagingSlot
	slots []*stagingSlot
	busy  atomic.Int32

	mu        sync.Mutex
	retired   bool
	destroyed int
	released  chan struct{}
}

// NewStagingPool creates size readback buffers for width x height frames.
func NewStagingPool(logger *slog.Logger, device gpu.Device, size, width, height int, format gputypes.TextureFormat) (*StagingPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: staging pool size must be > 0 (got %d)", ErrInvalidConfiguration, size)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("staging pool: invalid frame size %dx%d", width, height)
	}
	p := &StagingPool{
		device:   device,
		logger:   logger,
		width:    width,
		height:   height,
		stride:   gpu.AlignedBytesPerRow(width, format),
		format:   format,
		free:     make(chan *stagingSlot, size),
		slots:    make([]*stagingSlot, 0, size),
		released: make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		buf, err := device.CreateBuffer(gpu.ReadbackBufferDescriptor(fmt.Sprintf("staging-%dx%d-%d", width, height, i), width, height, format))
		if err != nil {
			for _, s := range p.slots {
				device.DestroyBuffer(s.buf)
			}
			return nil, fmt.Errorf("staging pool: create buffer %d: %w", i, err)
		}
		s := &stagingSlot{id: i, buf: buf, pool: p}
		p.slots = append(p.slots, s)
		p.free <- s
	}
	return p, nil
}

// Size returns the fixed slot count.
func (p *StagingPool) Size() int { return len(p.slots) }

// Available returns the number of free slots.
func (p *StagingPool) Available() int { return len(p.free) }

// InFlight returns the number of acquired slots not yet released. Slots
// destroyed by Retire are not counted.
func (p *StagingPool) InFlight() int { return int(p.busy.Load()) }

// Stride returns the row pitch of every slot.
func (p *StagingPool) Stride() int { return p.stride }

// Matches reports whether the pool serves frames of this size and format.
func (p *StagingPool) Matches(width, height int, format gputypes.TextureFormat) bool {
	return p.width == width && p.height == height && p.format == format
}

// TryAcquire returns a free slot, or false when every slot is in use.
func (p *StagingPool) TryAcquire() (*stagingSlot, bool) {
	select {
	case s := <-p.free:
		s.state.Store(int32(slotInFlight))
		p.busy.Add(1)
		return s, true
	default:
		return nil, false
	}
}

// Release returns s to the free list, or destroys its buffer if the pool has
// been retired. The caller guarantees the GPU no longer uses the buffer.
func (p *StagingPool) Release(s *stagingSlot) {
	s.state.Store(int32(slotFree))
	p.busy.Add(-1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retired {
		p.destroyLocked(s)
		return
	}
	p.free <- s
}

// Retire stops handing out slots. Free buffers are destroyed now; slots in
// flight are destroyed when released. Released closes once all are gone.
func (p *StagingPool) Retire() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retired {
		return
	}
	p.retired = true
	for {
		select {
		case s := <-p.free:
			p.destroyLocked(s)
		default:
			if p.logger != nil {
				p.logger.Debug("staging.retire", "size", len(p.slots), "outstanding", len(p.slots)-p.destroyed)
			}
			return
		}
	}
}

// Retired reports whether Retire has been called.
func (p *StagingPool) Retired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retired
}

// Released is closed once a retired pool has destroyed every buffer.
func (p *StagingPool) Released() <-chan struct{} { return p.released }

func (p *StagingPool) destroyLocked(s *stagingSlot) {
	p.device.DestroyBuffer(s.buf)
	p.destroyed++
	if p.destroyed == len(p.slots) {
		close(p.released)
	}
}
