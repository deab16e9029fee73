package adapter

import (
	"fmt"
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
	"github.com/Carmen-Shannon/oxy-bridge/engine/render_index"
	"github.com/go-gl/mathgl/mgl64"
)

// Camera parameter keys answered by GetCameraParamValue.
const (
	CameraParamProjection         common.Token = "projection"
	CameraParamFocalLength        common.Token = "focalLength"
	CameraParamHorizontalAperture common.Token = "horizontalAperture"
	CameraParamVerticalAperture   common.Token = "verticalAperture"
	CameraParamClippingRange      common.Token = "clippingRange"
	CameraParamFov                common.Token = "fov"
	CameraParamViewport           common.Token = "viewport"
	CameraParamProjectionMatrix   common.Token = "projectionMatrix"
	CameraParamViewMatrix         common.Token = "viewMatrix"
)

// Projection names returned for CameraParamProjection.
const (
	ProjectionPerspective  common.Token = "perspective"
	ProjectionOrthographic common.Token = "orthographic"
)

// inchToMM converts the host's film aperture unit to millimeters.
const inchToMM = 25.4

// cameraAdapter is the implementation of the CameraAdapter interface.
type cameraAdapter struct {
	baseAdapter

	mu        *sync.Mutex
	transform *mgl64.Mat4
	viewport  mgl64.Vec4
}

// CameraAdapter wraps a host camera as a camera sprim.
type CameraAdapter interface {
	Adapter
	Transformer

	// GetCameraParamValue answers a camera parameter query.
	//
	// Parameters:
	//   - param: the parameter key
	//
	// Returns:
	//   - any: the value, or nil for unknown parameters
	GetCameraParamValue(param common.Token) any

	// SetViewport records the viewport (x, y, width, height) the camera renders into.
	//
	// Parameters:
	//   - viewport: the viewport rectangle
	SetViewport(viewport mgl64.Vec4)
}

var _ CameraAdapter = &cameraAdapter{}

// NewCameraAdapter creates the adapter for a host camera.
//
// Parameters:
//   - p: the owning producer
//   - id: the identity path
//   - n: the host camera
//
// Returns:
//   - CameraAdapter: the new adapter
func NewCameraAdapter(p Producer, id common.Path, n host.Node) CameraAdapter {
	if p == nil || n == nil {
		panic("adapter: NewCameraAdapter requires a producer and a node")
	}
	return &cameraAdapter{
		baseAdapter: baseAdapter{id: id, producer: p, node: n},
		mu:          &sync.Mutex{},
	}
}

func (a *cameraAdapter) IsSupported() bool {
	return a.node.Valid() && a.producer.RenderIndex().IsSprimTypeSupported(render_index.PrimTypeCamera)
}

func (a *cameraAdapter) Populate() error {
	if a.populated {
		return nil
	}
	if err := a.producer.RenderIndex().InsertSprim(render_index.PrimTypeCamera, a.id); err != nil {
		return fmt.Errorf("failed to insert camera %s: %w", a.id, err)
	}
	a.populated = true
	return nil
}

func (a *cameraAdapter) RemovePrim() error {
	if !a.populated {
		return nil
	}
	a.populated = false
	if err := a.producer.RenderIndex().RemoveSprim(render_index.PrimTypeCamera, a.id); err != nil {
		return fmt.Errorf("failed to remove camera %s: %w", a.id, err)
	}
	return nil
}

func (a *cameraAdapter) CreateCallbacks() error {
	if len(a.callbacks) > 0 {
		return nil
	}
	if err := a.watch(a.node, host.CallbackAttributeChanged, func(host.Node) {
		a.producer.MarkDirtyOnIdle(a.id, render_index.DirtySprimParams)
	}); err != nil {
		return err
	}
	return a.watch(a.node, host.CallbackTransformChanged, func(host.Node) {
		a.InvalidateTransform()
		a.producer.MarkDirtyOnIdle(a.id, render_index.DirtySprimTransform|render_index.DirtySprimParams)
	})
}

func (a *cameraAdapter) MarkDirty(bits render_index.DirtyBits) {
	if !a.populated || bits == render_index.Clean {
		return
	}
	a.producer.RenderIndex().MarkSprimDirty(a.id, bits)
}

func (a *cameraAdapter) HasType(t render_index.PrimType) bool {
	return t == render_index.PrimTypeCamera
}

func (a *cameraAdapter) Get(key common.Token) any {
	return a.GetCameraParamValue(key)
}

func (a *cameraAdapter) GetTransform() mgl64.Mat4 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.transform == nil {
		m := a.node.WorldMatrix(0)
		a.transform = &m
	}
	return *a.transform
}

func (a *cameraAdapter) SampleTransform(maxSamples int) ([]float32, []mgl64.Mat4) {
	return sampleTransform(a.producer, a.GetTransform(), maxSamples)
}

func (a *cameraAdapter) InvalidateTransform() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transform = nil
}

func (a *cameraAdapter) SetViewport(viewport mgl64.Vec4) {
	a.mu.Lock()
	changed := a.viewport != viewport
	a.viewport = viewport
	a.mu.Unlock()
	if changed {
		a.MarkDirty(render_index.DirtySprimParams)
	}
}

func (a *cameraAdapter) GetCameraParamValue(param common.Token) any {
	switch param {
	case CameraParamProjection:
		if a.orthographic() {
			return ProjectionOrthographic
		}
		return ProjectionPerspective
	case CameraParamFocalLength:
		return host.FloatAttr(a.node, host.AttrFocalLength, 35)
	case CameraParamHorizontalAperture:
		return host.FloatAttr(a.node, host.AttrHorizontalAperture, 1.41732) * inchToMM
	case CameraParamVerticalAperture:
		return host.FloatAttr(a.node, host.AttrVerticalAperture, 0.94488) * inchToMM
	case CameraParamClippingRange:
		return mgl64.Vec2{a.near(), a.far()}
	case CameraParamFov:
		return a.fovY()
	case CameraParamViewport:
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.viewport
	case CameraParamProjectionMatrix:
		return a.projection()
	case CameraParamViewMatrix:
		return a.GetTransform().Inv()
	}
	return nil
}

func (a *cameraAdapter) orthographic() bool {
	return host.BoolAttr(a.node, host.AttrOrthographic, false)
}

func (a *cameraAdapter) near() float64 {
	return host.FloatAttr(a.node, host.AttrNearClip, 0.1)
}

func (a *cameraAdapter) far() float64 {
	return host.FloatAttr(a.node, host.AttrFarClip, 10000)
}

// fovY returns the vertical field of view in degrees derived from the film back.
func (a *cameraAdapter) fovY() float64 {
	focal := host.FloatAttr(a.node, host.AttrFocalLength, 35)
	vAperture := host.FloatAttr(a.node, host.AttrVerticalAperture, 0.94488) * inchToMM
	if focal <= 0 {
		return 45
	}
	return mgl64.RadToDeg(2 * math.Atan(vAperture/(2*focal)))
}

// projection builds the projection matrix for the current viewport aspect.
func (a *cameraAdapter) projection() mgl64.Mat4 {
	a.mu.Lock()
	vp := a.viewport
	a.mu.Unlock()
	aspect := 1.0
	if vp[3] > 0 {
		aspect = vp[2] / vp[3]
	}
	if a.orthographic() {
		w := host.FloatAttr(a.node, host.AttrOrthographicWidth, 30) / 2
		h := w / aspect
		return mgl64.Ortho(-w, w, -h, h, a.near(), a.far())
	}
	return common.Perspective(a.fovY(), aspect, a.near(), a.far())
}
