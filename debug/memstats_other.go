//go:build !windows

package debug

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/procfs"
)

// StartMemLogger logs memory stats every interval until ctx is done. RSS is
// read through procfs where /proc exists. retained may be nil.
func StartMemLogger(ctx context.Context, interval time.Duration, logger *slog.Logger, retained func() int64) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			logMemStats(logger, procRSS(), retained)
		}
	}()
}

// procRSS returns the resident set size of this process, or 0 without procfs.
func procRSS() uint64 {
	p, err := procfs.Self()
	if err != nil {
		return 0
	}
	st, err := p.Stat()
	if err != nil {
		return 0
	}
	return uint64(st.ResidentMemory())
}
