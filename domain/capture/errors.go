package capture

import (
	"errors"

	"github.com/soocke/framering-go/domain/gpu"
)

// Errors surfaced to callers. Frame drops and empty snapshot ranges are not
// errors; they are counted in Stats and yield empty results respectively.
var (
	// ErrInvalidTarget is returned when a window or monitor handle cannot be
	// captured.
	ErrInvalidTarget = errors.New("capture: invalid capture target")

	// ErrDeviceLost is fatal to a session. There is no automatic recovery; the
	// caller must open a new stream.
	ErrDeviceLost = gpu.ErrDeviceLost

	// ErrInvalidConfiguration is returned for non-positive buffer seconds,
	// memory budget or frame rate, and other out-of-range options.
	ErrInvalidConfiguration = errors.New("capture: invalid configuration")

	// ErrUseAfterClose is returned by operations on a closed session or
	// stream.
	ErrUseAfterClose = errors.New("capture: use after close")

	// ErrAlreadyStarted is returned when starting a session twice.
	ErrAlreadyStarted = errors.New("capture: session already started")
)
