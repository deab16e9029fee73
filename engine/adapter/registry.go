package adapter

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
)

// ShapeCreator constructs the adapter for a shape node.
type ShapeCreator func(p Producer, id common.Path, n host.Node) ShapeAdapter

// LightCreator constructs the adapter for a light node.
type LightCreator func(p Producer, id common.Path, n host.Node) LightAdapter

// CameraCreator constructs the adapter for a camera node.
type CameraCreator func(p Producer, id common.Path, n host.Node) CameraAdapter

// MaterialCreator constructs the adapter for a shading engine.
type MaterialCreator func(p Producer, id common.Path, shadingEngine host.Node) MaterialAdapter

// registry is the implementation of the Registry interface.
type registry struct {
	mu        *sync.RWMutex
	shapes    map[string]ShapeCreator
	lights    map[string]LightCreator
	cameras   map[string]CameraCreator
	materials map[string]MaterialCreator
}

// Registry maps host type names to adapter constructors.
type Registry interface {
	// RegisterShape registers the constructor for shapes of typeName.
	//
	// Parameters:
	//   - typeName: the host type name
	//   - fn: the constructor
	RegisterShape(typeName string, fn ShapeCreator)

	// RegisterLight registers the constructor for lights of typeName.
	//
	// Parameters:
	//   - typeName: the host type name
	//   - fn: the constructor
	RegisterLight(typeName string, fn LightCreator)

	// RegisterCamera registers the constructor for cameras of typeName.
	//
	// Parameters:
	//   - typeName: the host type name
	//   - fn: the constructor
	RegisterCamera(typeName string, fn CameraCreator)

	// RegisterMaterial registers the constructor for shading engines of typeName.
	//
	// Parameters:
	//   - typeName: the host type name
	//   - fn: the constructor
	RegisterMaterial(typeName string, fn MaterialCreator)

	// ShapeCreator returns the constructor for shapes of typeName, nil if none.
	ShapeCreator(typeName string) ShapeCreator

	// LightCreator returns the constructor for lights of typeName, nil if none.
	LightCreator(typeName string) LightCreator

	// CameraCreator returns the constructor for cameras of typeName, nil if none.
	CameraCreator(typeName string) CameraCreator

	// MaterialCreator returns the constructor for shading engines of typeName, nil if none.
	MaterialCreator(typeName string) MaterialCreator
}

var _ Registry = &registry{}

// NewRegistry creates a registry holding the built-in adapters.
//
// Returns:
//   - Registry: the registry
func NewRegistry() Registry {
	r := &registry{
		mu:        &sync.RWMutex{},
		shapes:    make(map[string]ShapeCreator),
		lights:    make(map[string]LightCreator),
		cameras:   make(map[string]CameraCreator),
		materials: make(map[string]MaterialCreator),
	}
	for _, t := range []string{"mesh", "nurbsCurve", "bezierCurve", "particle", "nParticle"} {
		r.shapes[t] = NewShapeAdapter
	}
	for _, t := range []string{"directionalLight", "pointLight", "spotLight", "areaLight", "volumeLight", "ambientLight", "aiSkyDomeLight", "domeLight"} {
		r.lights[t] = NewLightAdapter
	}
	r.cameras["camera"] = NewCameraAdapter
	r.materials["shadingEngine"] = NewMaterialAdapter
	return r
}

func (r *registry) RegisterShape(typeName string, fn ShapeCreator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shapes[typeName] = fn
}

func (r *registry) RegisterLight(typeName string, fn LightCreator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lights[typeName] = fn
}

func (r *registry) RegisterCamera(typeName string, fn CameraCreator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cameras[typeName] = fn
}

func (r *registry) RegisterMaterial(typeName string, fn MaterialCreator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.materials[typeName] = fn
}

func (r *registry) ShapeCreator(typeName string) ShapeCreator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.shapes[typeName]
}

func (r *registry) LightCreator(typeName string) LightCreator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lights[typeName]
}

func (r *registry) CameraCreator(typeName string) CameraCreator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cameras[typeName]
}

func (r *registry) MaterialCreator(typeName string) MaterialCreator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.materials[typeName]
}
