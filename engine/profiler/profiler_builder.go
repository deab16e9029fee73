package profiler

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProfilerBuilderOption is a functional option for configuring a Profiler.
type ProfilerBuilderOption func(*Profiler)

// WithLogger sets the logger the periodic summary is written to.
//
// Parameters:
//   - logger: the logger, ignored if nil
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithLogger(logger *slog.Logger) ProfilerBuilderOption {
	return func(p *Profiler) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRegisterer sets the registerer the profiler's collectors are registered with.
//
// Parameters:
//   - reg: the prometheus registerer
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithRegisterer(reg prometheus.Registerer) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.reg = reg
	}
}

// WithUpdateInterval sets how often the summary is logged.
// Values <= 0 are treated as the default (1 second).
//
// Parameters:
//   - d: the summary interval
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithUpdateInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d <= 0 {
			d = time.Second
		}
		p.updateInterval = d
	}
}

// WithClock replaces the time source used to measure the summary interval.
//
// Parameters:
//   - now: the time source
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithClock(now func() time.Time) ProfilerBuilderOption {
	return func(p *Profiler) {
		if now != nil {
			p.now = now
		}
	}
}
