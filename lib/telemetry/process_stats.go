package telemetry

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
)

var processMeter = otel.Meter("lib/telemetry/process")
var processCpuGauge, _ = processMeter.Float64Gauge("process.cpu_percent")
var processRssGauge, _ = processMeter.Int64Gauge("process.rss_mb")
var goroutineGauge, _ = processMeter.Int64Gauge("process.goroutines")

// RecordProcessStats samples the collector's own cpu and memory use every
// interval until ctx is done. Long matching runs are the only place this
// is worth turning on.
func RecordProcessStats(ctx context.Context, interval time.Duration) error {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				sampleProcess(ctx, proc)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func sampleProcess(ctx context.Context, proc *process.Process) {
	cpu, err := proc.CPUPercentWithContext(ctx)
	if err == nil {
		processCpuGauge.Record(ctx, cpu)
	} else {
		slog.Debug("failed to read process cpu", "err", err)
	}

	mem, err := proc.MemoryInfoWithContext(ctx)
	if err == nil {
		processRssGauge.Record(ctx, int64(mem.RSS/1_000_000))
	} else {
		slog.Debug("failed to read process memory", "err", err)
	}

	goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))
}
