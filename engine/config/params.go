// Package config holds the parameters that steer how the bridge represents the host
// scene, with defaults, file loading, validation and hot reload.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// EnvUseMeshAdapter overrides Params.UseMeshAdapter when set to a boolean string.
const EnvUseMeshAdapter = "OXY_BRIDGE_USE_MESH_ADAPTER"

// ErrInvalidParams is wrapped by every validation failure.
var ErrInvalidParams = errors.New("invalid params")

// Params configures one scene delegate.
type Params struct {
	// UseMeshAdapter selects direct per-node shape adapters instead of render-item driven shapes.
	UseMeshAdapter bool `yaml:"use_mesh_adapter" toml:"use_mesh_adapter"`
	// LightsEnabled allows light adapters to be created.
	LightsEnabled *bool `yaml:"lights_enabled" toml:"lights_enabled"`
	// DisplaySmoothMeshes refines meshes by their smooth level.
	DisplaySmoothMeshes bool `yaml:"display_smooth_meshes" toml:"display_smooth_meshes"`
	// MotionSampleStart is the shutter open offset used when sampling transforms.
	MotionSampleStart float32 `yaml:"motion_sample_start" toml:"motion_sample_start"`
	// MotionSampleEnd is the shutter close offset used when sampling transforms.
	MotionSampleEnd float32 `yaml:"motion_sample_end" toml:"motion_sample_end"`
	// TextureMemoryPerTexture caps the memory of a single texture in bytes; 0 means unlimited.
	TextureMemoryPerTexture int `yaml:"texture_memory_per_texture" toml:"texture_memory_per_texture"`
	// MaximumShadowMapResolution caps the shadow map size of every light.
	MaximumShadowMapResolution int `yaml:"maximum_shadow_map_resolution" toml:"maximum_shadow_map_resolution"`
	// RequiresLightSync enables the per-frame active light reconciliation.
	RequiresLightSync *bool `yaml:"requires_light_sync" toml:"requires_light_sync"`
	// SyncWorkers is the number of workers used to prepare render-item payloads.
	SyncWorkers int `yaml:"sync_workers" toml:"sync_workers"`
}

// DefaultParams returns the parameters a delegate starts with.
//
// Returns:
//   - Params: the defaults
func DefaultParams() Params {
	p := Params{}
	p.applyDefaults()
	return p
}

// Lights reports whether light adapters may be created.
func (p Params) Lights() bool {
	return p.LightsEnabled == nil || *p.LightsEnabled
}

// LightSync reports whether the active light list is reconciled every frame.
func (p Params) LightSync() bool {
	return p.RequiresLightSync == nil || *p.RequiresLightSync
}

// MotionSampled reports whether transforms are sampled over a shutter interval.
func (p Params) MotionSampled() bool {
	return p.MotionSampleStart != p.MotionSampleEnd
}

// WithLights returns a copy of p with lights enabled or disabled.
func (p Params) WithLights(enabled bool) Params {
	p.LightsEnabled = &enabled
	return p
}

// WithLightSync returns a copy of p with light synchronization enabled or disabled.
func (p Params) WithLightSync(enabled bool) Params {
	p.RequiresLightSync = &enabled
	return p
}

// Validate fills unset fields with defaults and rejects inconsistent values.
//
// Returns:
//   - error: an error wrapping ErrInvalidParams if the parameters are inconsistent
func (p *Params) Validate() error {
	if p.MotionSampleStart > p.MotionSampleEnd {
		return fmt.Errorf("%w: motion_sample_start %v is after motion_sample_end %v", ErrInvalidParams, p.MotionSampleStart, p.MotionSampleEnd)
	}
	if p.TextureMemoryPerTexture < 0 {
		return fmt.Errorf("%w: texture_memory_per_texture must not be negative", ErrInvalidParams)
	}
	if p.MaximumShadowMapResolution < 0 {
		return fmt.Errorf("%w: maximum_shadow_map_resolution must not be negative", ErrInvalidParams)
	}
	if p.SyncWorkers < 0 {
		return fmt.Errorf("%w: sync_workers must not be negative", ErrInvalidParams)
	}
	p.applyDefaults()
	return nil
}

// ApplyEnv overrides fields from the process environment.
//
// Returns:
//   - error: an error wrapping ErrInvalidParams if a variable cannot be parsed
func (p *Params) ApplyEnv() error {
	v, ok := os.LookupEnv(EnvUseMeshAdapter)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %w", ErrInvalidParams, EnvUseMeshAdapter, v, err)
	}
	p.UseMeshAdapter = b
	return nil
}

func (p *Params) applyDefaults() {
	p.MaximumShadowMapResolution = orDefault(p.MaximumShadowMapResolution, 2048)
	p.SyncWorkers = orDefault(p.SyncWorkers, max(runtime.NumCPU()-1, 1))
}

// orDefault returns v, or def when v is left unset.
func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
