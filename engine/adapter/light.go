package adapter

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
	"github.com/Carmen-Shannon/oxy-bridge/engine/render_index"
	"github.com/go-gl/mathgl/mgl64"
)

// Light parameter keys answered by GetLightParamValue.
const (
	ParamColor            common.Token = "color"
	ParamIntensity        common.Token = "intensity"
	ParamPosition         common.Token = "position"
	ParamDirection        common.Token = "direction"
	ParamConeAngle        common.Token = "shaping:cone:angle"
	ParamShadowEnable     common.Token = "shadow:enable"
	ParamShadowMatrix     common.Token = "shadow:matrix"
	ParamShadowResolution common.Token = "shadow:resolution"
	ParamShadowBias       common.Token = "shadow:bias"
	ParamLightingOn       common.Token = "lightingOn"
)

// Light shadow defaults.
const (
	// DefaultShadowResolution is the shadow map size of a light that does not set one.
	DefaultShadowResolution = 2048
	// DefaultShadowBias is the constant depth bias applied to shadow comparisons.
	DefaultShadowBias = 0.001
)

// lightAdapter is the implementation of the LightAdapter interface.
type lightAdapter struct {
	baseAdapter

	primType render_index.PrimType

	mu         *sync.Mutex
	transform  *mgl64.Mat4
	lightingOn bool
	visible    bool
	shadowVP   *mgl64.Mat4
}

// LightAdapter wraps a host light as a light sprim.
//
// The lighting-enabled state is driven by the active-light reconciliation of the sync
// pass: a light the draw context no longer reports active is turned off rather than
// removed, so it can be turned on again without re-creating the adapter.
type LightAdapter interface {
	Adapter
	Transformer

	// PrimType returns the light sprim type.
	//
	// Returns:
	//   - render_index.PrimType: the sprim type
	PrimType() render_index.PrimType

	// GetVisible reports the visibility recorded at the last UpdateVisibility.
	//
	// Returns:
	//   - bool: true if visible
	GetVisible() bool

	// UpdateVisibility re-reads the host visibility of the light.
	//
	// Returns:
	//   - bool: true if the visibility changed
	UpdateVisibility() bool

	// SetLightingOn turns the light's contribution on or off, marking its params dirty
	// on change.
	//
	// Parameters:
	//   - on: the new lighting state
	SetLightingOn(on bool)

	// LightingOn reports whether the light currently contributes lighting.
	//
	// Returns:
	//   - bool: true if on
	LightingOn() bool

	// SetShadowProjectionMatrix stores the shadow view-projection matrix the host computed
	// for this frame, marking shadow params dirty on change.
	//
	// Parameters:
	//   - m: the shadow view-projection matrix
	SetShadowProjectionMatrix(m mgl64.Mat4)

	// GetLightParamValue answers a light parameter query.
	//
	// Parameters:
	//   - param: the parameter key
	//
	// Returns:
	//   - any: the value, or nil for unknown parameters
	GetLightParamValue(param common.Token) any
}

var _ LightAdapter = &lightAdapter{}

// LightPrimType maps a host light type name onto the light sprim type used for it.
//
// Parameters:
//   - typeName: the host type name
//
// Returns:
//   - render_index.PrimType: the sprim type, empty for unknown lights
func LightPrimType(typeName string) render_index.PrimType {
	switch typeName {
	case "directionalLight":
		return render_index.PrimTypeDistantLight
	case "pointLight", "spotLight", "areaLight", "volumeLight":
		return render_index.PrimTypeSphereLight
	case "ambientLight":
		return render_index.PrimTypeSimpleLight
	case "aiSkyDomeLight", "domeLight":
		return render_index.PrimTypeDomeLight
	}
	return ""
}

// NewLightAdapter creates the adapter for a host light.
//
// Parameters:
//   - p: the owning producer
//   - id: the identity path
//   - n: the host light
//
// Returns:
//   - LightAdapter: the new adapter
func NewLightAdapter(p Producer, id common.Path, n host.Node) LightAdapter {
	if p == nil || n == nil {
		panic("adapter: NewLightAdapter requires a producer and a node")
	}
	a := &lightAdapter{
		baseAdapter: baseAdapter{id: id, producer: p, node: n},
		primType:    LightPrimType(n.TypeName()),
		mu:          &sync.Mutex{},
		lightingOn:  true,
	}
	a.visible = a.hostVisible()
	return a
}

func (a *lightAdapter) PrimType() render_index.PrimType {
	return a.primType
}

func (a *lightAdapter) IsSupported() bool {
	return a.primType != "" && a.node.Valid() && a.producer.RenderIndex().IsSprimTypeSupported(a.primType)
}

func (a *lightAdapter) Populate() error {
	if a.populated {
		return nil
	}
	if err := a.producer.RenderIndex().InsertSprim(a.primType, a.id); err != nil {
		return fmt.Errorf("failed to insert light %s: %w", a.id, err)
	}
	a.populated = true
	return nil
}

func (a *lightAdapter) RemovePrim() error {
	if !a.populated {
		return nil
	}
	a.populated = false
	if err := a.producer.RenderIndex().RemoveSprim(a.primType, a.id); err != nil {
		return fmt.Errorf("failed to remove light %s: %w", a.id, err)
	}
	return nil
}

func (a *lightAdapter) CreateCallbacks() error {
	if len(a.callbacks) > 0 {
		return nil
	}
	if err := a.watch(a.node, host.CallbackAttributeChanged, func(host.Node) {
		a.producer.MarkDirtyOnIdle(a.id, render_index.DirtySprimParams|render_index.DirtySprimShadowParams)
	}); err != nil {
		return err
	}
	return a.watch(a.node, host.CallbackTransformChanged, func(host.Node) {
		a.InvalidateTransform()
		a.producer.MarkDirtyOnIdle(a.id, render_index.DirtySprimTransform|render_index.DirtySprimParams)
	})
}

func (a *lightAdapter) MarkDirty(bits render_index.DirtyBits) {
	if !a.populated || bits == render_index.Clean {
		return
	}
	a.producer.RenderIndex().MarkSprimDirty(a.id, bits)
}

func (a *lightAdapter) HasType(t render_index.PrimType) bool {
	return a.primType == t
}

func (a *lightAdapter) Get(key common.Token) any {
	return a.GetLightParamValue(key)
}

func (a *lightAdapter) GetTransform() mgl64.Mat4 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.transform == nil {
		m := a.node.WorldMatrix(0)
		a.transform = &m
	}
	return *a.transform
}

func (a *lightAdapter) SampleTransform(maxSamples int) ([]float32, []mgl64.Mat4) {
	return sampleTransform(a.producer, a.GetTransform(), maxSamples)
}

func (a *lightAdapter) InvalidateTransform() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transform = nil
}

func (a *lightAdapter) GetVisible() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.visible
}

func (a *lightAdapter) UpdateVisibility() bool {
	v := a.hostVisible()
	a.mu.Lock()
	defer a.mu.Unlock()
	if v == a.visible {
		return false
	}
	a.visible = v
	return true
}

func (a *lightAdapter) SetLightingOn(on bool) {
	a.mu.Lock()
	changed := a.lightingOn != on
	a.lightingOn = on
	a.mu.Unlock()
	if changed {
		a.MarkDirty(render_index.DirtySprimParams)
	}
}

func (a *lightAdapter) LightingOn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lightingOn
}

func (a *lightAdapter) SetShadowProjectionMatrix(m mgl64.Mat4) {
	a.mu.Lock()
	changed := a.shadowVP == nil || !common.MatricesEqual(*a.shadowVP, m, 1e-9)
	a.shadowVP = &m
	a.mu.Unlock()
	if changed {
		a.MarkDirty(render_index.DirtySprimShadowParams)
	}
}

func (a *lightAdapter) GetLightParamValue(param common.Token) any {
	switch param {
	case ParamColor:
		return host.Vec3Attr(a.node, host.AttrColor, mgl64.Vec3{1, 1, 1})
	case ParamIntensity:
		return host.FloatAttr(a.node, host.AttrIntensity, 1)
	case ParamPosition:
		return a.GetTransform().Col(3).Vec3()
	case ParamDirection:
		// lights shine down their local -Z axis
		return a.GetTransform().Mul4x1(mgl64.Vec4{0, 0, -1, 0}).Vec3().Normalize()
	case ParamConeAngle:
		if a.node.TypeName() != "spotLight" {
			return nil
		}
		return host.FloatAttr(a.node, host.AttrConeAngle, 40) / 2
	case ParamShadowEnable:
		return host.BoolAttr(a.node, host.AttrCastShadows, false)
	case ParamShadowMatrix:
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.shadowVP == nil {
			return nil
		}
		return *a.shadowVP
	case ParamShadowResolution:
		res := int(host.FloatAttr(a.node, "dmapResolution", DefaultShadowResolution))
		if limit := a.producer.Params().MaximumShadowMapResolution; limit > 0 {
			res = min(res, limit)
		}
		return res
	case ParamShadowBias:
		return host.FloatAttr(a.node, "dmapBias", DefaultShadowBias)
	case ParamLightingOn:
		return a.LightingOn()
	}
	return nil
}

// hostVisible reports whether the light is visible and lights objects by default.
func (a *lightAdapter) hostVisible() bool {
	if !a.node.Valid() || !a.node.Visible() {
		return false
	}
	return host.BoolAttr(a.node, host.AttrIlluminates, true)
}
