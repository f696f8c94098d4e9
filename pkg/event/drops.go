package event

import (
	"log/slog"
	"time"

	"github.com/joeycumines/go-catrate"
)

// DefaultDropRates bounds drop log lines per channel.
var DefaultDropRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 60,
}

// DropReporter logs queue-full drops, rate limited per channel. Drops over
// the limit are still counted by the channel, just not logged.
type DropReporter struct {
	limiter *catrate.Limiter
	logger  *slog.Logger
}

// NewDropReporter returns a reporter using rates, or DefaultDropRates when
// rates is nil.
func NewDropReporter(logger *slog.Logger, rates map[time.Duration]int) *DropReporter {
	if rates == nil {
		rates = DefaultDropRates
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DropReporter{
		limiter: catrate.NewLimiter(rates),
		logger:  logger,
	}
}

// Report is suitable for WithDropHook.
func (d *DropReporter) Report(channel string, total uint64) {
	if _, ok := d.limiter.Allow(channel); !ok {
		return
	}
	d.logger.Warn("event dropped, queue full", "channel", channel, "dropped_total", total)
}
