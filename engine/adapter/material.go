package adapter

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
	"github.com/Carmen-Shannon/oxy-bridge/engine/render_index"
	"github.com/go-gl/mathgl/mgl64"
)

// materialAdapter is the implementation of the MaterialAdapter interface.
type materialAdapter struct {
	baseAdapter

	mu   *sync.Mutex
	tag  common.Token
	xray bool
}

// MaterialAdapter wraps a host shading engine as a material sprim.
//
// The material tag classifies the material for the renderer's batching (opaque or
// translucent). A tag change can move every prim bound to the material into a
// different draw batch, so it is not applied in place: host edits only report it to
// the producer, and the sync pass re-derives it with UpdateMaterialTag and rebuilds
// the bound prims.
type MaterialAdapter interface {
	Adapter

	// GetMaterialResource builds the material network the renderer shades with.
	//
	// Returns:
	//   - *MaterialNetwork: the network
	GetMaterialResource() *MaterialNetwork

	// MaterialTag returns the classification derived at the last UpdateMaterialTag.
	//
	// Returns:
	//   - common.Token: the material tag
	MaterialTag() common.Token

	// UpdateMaterialTag re-derives the material tag from the host.
	//
	// Returns:
	//   - bool: true if the tag changed
	UpdateMaterialTag() bool

	// EnableXRayShadingMode switches x-ray shading, marking the resource dirty on change.
	//
	// Parameters:
	//   - enabled: the new x-ray state
	EnableXRayShadingMode(enabled bool)
}

var _ MaterialAdapter = &materialAdapter{}

// NewMaterialAdapter creates the adapter for a host shading engine.
//
// Parameters:
//   - p: the owning producer
//   - id: the identity path
//   - shadingEngine: the host shading engine
//
// Returns:
//   - MaterialAdapter: the new adapter
func NewMaterialAdapter(p Producer, id common.Path, shadingEngine host.Node) MaterialAdapter {
	if p == nil || shadingEngine == nil {
		panic("adapter: NewMaterialAdapter requires a producer and a shading engine")
	}
	a := &materialAdapter{
		baseAdapter: baseAdapter{id: id, producer: p, node: shadingEngine},
		mu:          &sync.Mutex{},
	}
	a.tag = a.deriveTag()
	return a
}

func (a *materialAdapter) IsSupported() bool {
	return a.node.Valid() && a.producer.RenderIndex().IsSprimTypeSupported(render_index.PrimTypeMaterial)
}

func (a *materialAdapter) Populate() error {
	if a.populated {
		return nil
	}
	if err := a.producer.RenderIndex().InsertSprim(render_index.PrimTypeMaterial, a.id); err != nil {
		return fmt.Errorf("failed to insert material %s: %w", a.id, err)
	}
	a.populated = true
	return nil
}

func (a *materialAdapter) RemovePrim() error {
	if !a.populated {
		return nil
	}
	a.populated = false
	if err := a.producer.RenderIndex().RemoveSprim(render_index.PrimTypeMaterial, a.id); err != nil {
		return fmt.Errorf("failed to remove material %s: %w", a.id, err)
	}
	return nil
}

func (a *materialAdapter) CreateCallbacks() error {
	if len(a.callbacks) > 0 {
		return nil
	}
	if err := a.watch(a.node, host.CallbackNodeDirty, a.onShaderChanged); err != nil {
		return err
	}
	if shader := a.surfaceShader(); shader != nil {
		return a.watch(shader, host.CallbackAttributeChanged, a.onShaderChanged)
	}
	return nil
}

// onShaderChanged marks the resource dirty and reports classification changes.
func (a *materialAdapter) onShaderChanged(host.Node) {
	a.producer.MarkDirtyOnIdle(a.id, render_index.DirtySprimResource|render_index.DirtySprimParams)
	if a.deriveTag() != a.MaterialTag() {
		a.producer.MaterialTagChanged(a.id)
	}
}

func (a *materialAdapter) MarkDirty(bits render_index.DirtyBits) {
	if !a.populated || bits == render_index.Clean {
		return
	}
	a.producer.RenderIndex().MarkSprimDirty(a.id, bits)
}

func (a *materialAdapter) HasType(t render_index.PrimType) bool {
	return t == render_index.PrimTypeMaterial
}

func (a *materialAdapter) Get(key common.Token) any {
	return nil
}

func (a *materialAdapter) GetMaterialResource() *MaterialNetwork {
	shader := a.surfaceShader()
	color := host.Vec3Attr(shader, host.AttrColor, mgl64.Vec3{0.5, 0.5, 0.5})
	diffuse := host.FloatAttr(shader, host.AttrDiffuse, 0.8)
	opacity := a.opacity(shader)
	a.mu.Lock()
	if a.xray {
		opacity *= xRayOpacity
	}
	a.mu.Unlock()
	roughness := host.FloatAttr(shader, host.AttrRoughness, 0.5)
	return PreviewSurfaceNetwork(a.id, color.Mul(diffuse), opacity, 0, roughness)
}

func (a *materialAdapter) MaterialTag() common.Token {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tag
}

func (a *materialAdapter) UpdateMaterialTag() bool {
	tag := a.deriveTag()
	a.mu.Lock()
	defer a.mu.Unlock()
	if tag == a.tag {
		return false
	}
	a.tag = tag
	return true
}

func (a *materialAdapter) EnableXRayShadingMode(enabled bool) {
	a.mu.Lock()
	changed := a.xray != enabled
	a.xray = enabled
	a.mu.Unlock()
	if changed {
		a.MarkDirty(render_index.DirtySprimResource)
	}
}

// surfaceShader returns the shader node connected to the shading engine.
func (a *materialAdapter) surfaceShader() host.Node {
	if !a.node.Valid() {
		return nil
	}
	shader, _ := host.Attr[host.Node](a.node, host.AttrSurfaceShader)
	return shader
}

// opacity converts the shader's transparency into an opacity.
func (a *materialAdapter) opacity(shader host.Node) float64 {
	t := host.FloatAttr(shader, host.AttrTransparency, 0)
	return min(max(1-t, 0), 1)
}

// deriveTag classifies the material from the host shader.
func (a *materialAdapter) deriveTag() common.Token {
	if a.opacity(a.surfaceShader()) < 1 {
		return MaterialTagTranslucent
	}
	return MaterialTagDefault
}
