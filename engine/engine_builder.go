package engine

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-bridge/engine/delegate"
	"github.com/Carmen-Shannon/oxy-bridge/engine/profiler"
	"github.com/prometheus/client_golang/prometheus"
)

// BridgeBuilderOption is a functional option for configuring a Bridge.
// Use the With* functions to create options that are applied directly to the bridge instance.
type BridgeBuilderOption func(*bridge)

// WithProfiling enables or disables the periodic frame statistics log.
//
// Parameters:
//   - enabled: if true, enables profiling
//
// Returns:
//   - BridgeBuilderOption: option function to apply
func WithProfiling(enabled bool) BridgeBuilderOption {
	return func(b *bridge) {
		b.profilingEnabled.Store(enabled)
	}
}

// WithProfiler sets a custom configured profiler rather than letting the bridge create one.
//
// Parameters:
//   - p: a pre-configured Profiler
//
// Returns:
//   - BridgeBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) BridgeBuilderOption {
	return func(b *bridge) {
		b.profiler = p
	}
}

// WithLogger sets the logger of the bridge and, unless overridden through
// WithDelegateOptions, of its delegate.
//
// Parameters:
//   - logger: the logger, ignored if nil
//
// Returns:
//   - BridgeBuilderOption: option function to apply
func WithLogger(logger *slog.Logger) BridgeBuilderOption {
	return func(b *bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithRegisterer sets the registerer shared by the delegate's and the profiler's collectors.
//
// Parameters:
//   - reg: the prometheus registerer
//
// Returns:
//   - BridgeBuilderOption: option function to apply
func WithRegisterer(reg prometheus.Registerer) BridgeBuilderOption {
	return func(b *bridge) {
		b.reg = reg
	}
}

// WithDelegateOptions passes options through to the scene delegate the bridge creates.
// They are applied after the bridge's own logger and registerer.
//
// Parameters:
//   - options: the delegate options
//
// Returns:
//   - BridgeBuilderOption: option function to apply
func WithDelegateOptions(options ...delegate.SceneDelegateBuilderOption) BridgeBuilderOption {
	return func(b *bridge) {
		b.delegateOptions = append(b.delegateOptions, options...)
	}
}

// WithParamsFile watches a YAML or TOML params file while the bridge runs and applies
// every successful reload. The initial parameters are still passed with
// WithDelegateOptions.
//
// Parameters:
//   - path: the params file
//
// Returns:
//   - BridgeBuilderOption: option function to apply
func WithParamsFile(path string) BridgeBuilderOption {
	return func(b *bridge) {
		b.paramsFile = path
	}
}
