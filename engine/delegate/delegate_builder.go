package delegate

import (
	"log/slog"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/adapter"
	"github.com/Carmen-Shannon/oxy-bridge/engine/config"
	"github.com/prometheus/client_golang/prometheus"
)

// SceneDelegateBuilderOption is a functional option for configuring a SceneDelegate.
// Use the With* functions to create options.
type SceneDelegateBuilderOption func(d *sceneDelegate)

// WithLogger sets the logger diagnostics are written to. Defaults to slog.Default().
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - SceneDelegateBuilderOption: option function to apply
func WithLogger(logger *slog.Logger) SceneDelegateBuilderOption {
	return func(d *sceneDelegate) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithRegistry sets the registry adapters are constructed from. Defaults to the
// built-in registry.
//
// Parameters:
//   - r: the adapter registry
//
// Returns:
//   - SceneDelegateBuilderOption: option function to apply
func WithRegistry(r adapter.Registry) SceneDelegateBuilderOption {
	return func(d *sceneDelegate) {
		if r != nil {
			d.registry = r
		}
	}
}

// WithParams sets the initial parameters. The population strategy
// (Params.UseMeshAdapter) is read once here and cannot change afterwards.
//
// Parameters:
//   - p: the parameters
//
// Returns:
//   - SceneDelegateBuilderOption: option function to apply
func WithParams(p config.Params) SceneDelegateBuilderOption {
	return func(d *sceneDelegate) {
		d.params = p
	}
}

// WithRegisterer sets the registerer the delegate's collectors are registered with.
// Defaults to a private registry.
//
// Parameters:
//   - reg: the registerer
//
// Returns:
//   - SceneDelegateBuilderOption: option function to apply
func WithRegisterer(reg prometheus.Registerer) SceneDelegateBuilderOption {
	return func(d *sceneDelegate) {
		d.reg = reg
	}
}

// WithDelegateID fixes the root path of the delegate's prims instead of deriving one
// from the instance id.
//
// Parameters:
//   - id: the delegate root
//
// Returns:
//   - SceneDelegateBuilderOption: option function to apply
func WithDelegateID(id common.Path) SceneDelegateBuilderOption {
	return func(d *sceneDelegate) {
		d.id = id
	}
}

// WithWorkerPool shares an existing worker pool for render-item payload preparation.
// The delegate does not stop a shared pool on Close.
//
// Parameters:
//   - pool: the worker pool
//
// Returns:
//   - SceneDelegateBuilderOption: option function to apply
func WithWorkerPool(pool worker.DynamicWorkerPool) SceneDelegateBuilderOption {
	return func(d *sceneDelegate) {
		if pool != nil {
			d.pool = pool
			d.ownsPool = false
		}
	}
}
