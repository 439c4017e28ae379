// Package debug holds periodic runtime loggers enabled by the debug setting.
package debug

import (
	"log/slog"
	"runtime"

	"github.com/dustin/go-humanize"
)

func logMemStats(logger *slog.Logger, rss uint64, retained func() int64) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	attrs := []any{
		slog.Int("goroutines", runtime.NumGoroutine()),
		slog.String("heap_alloc", humanize.IBytes(ms.HeapAlloc)),
		slog.String("heap_inuse", humanize.IBytes(ms.HeapInuse)),
		slog.String("heap_idle", humanize.IBytes(ms.HeapIdle)),
		slog.String("heap_sys", humanize.IBytes(ms.HeapSys)),
		slog.Uint64("next_gc", ms.NextGC),
		slog.String("rss", humanize.IBytes(rss)),
		slog.Uint64("num_gc", uint64(ms.NumGC)),
	}
	if retained != nil {
		attrs = append(attrs, slog.String("ring_retained", humanize.IBytes(uint64(retained()))))
	}
	logger.Info("memstats", attrs...)
}
