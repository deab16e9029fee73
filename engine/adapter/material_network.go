package adapter

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/go-gl/mathgl/mgl64"
)

// Material network tokens.
const (
	// PreviewSurface is the shader identifier of the preview surface node.
	PreviewSurface common.Token = "UsdPreviewSurface"
	// PrimvarReader is the shader identifier of a node reading a primvar.
	PrimvarReader common.Token = "UsdPrimvarReader_float3"
	// TerminalSurface names the surface terminal of a network.
	TerminalSurface common.Token = "surface"

	InputDiffuseColor common.Token = "diffuseColor"
	InputOpacity      common.Token = "opacity"
	InputMetallic     common.Token = "metallic"
	InputRoughness    common.Token = "roughness"
	InputVarname      common.Token = "varname"
	OutputResult      common.Token = "result"
	OutputSurface     common.Token = "surface"
)

// Material tags classify how the renderer batches a material.
const (
	MaterialTagDefault     common.Token = "defaultMaterialTag"
	MaterialTagTranslucent common.Token = "translucent"
)

// DefaultMaterialName names the default material sprim below a delegate's root.
const DefaultMaterialName = "__default_material__"

// FallbackMaterialID is the identity of the fallback material: the empty path, for
// which the renderer shades with the prim's display color and constant lighting.
const FallbackMaterialID = common.EmptyPath

// defaultMaterialGray is the diffuse color of the default material.
const defaultMaterialGray = 0.5 * 0.8

// xRayOpacity is the opacity multiplier applied while x-ray shading is on.
const xRayOpacity = 0.5

// MaterialNode is one shader node of a material network.
type MaterialNode struct {
	// Path identifies the node within the network.
	Path common.Path
	// Identifier is the shader the node instantiates.
	Identifier common.Token
	// Parameters holds the authored input values.
	Parameters map[common.Token]any
}

// MaterialRelationship connects an output of one node to an input of another.
type MaterialRelationship struct {
	InputID    common.Path
	InputName  common.Token
	OutputID   common.Path
	OutputName common.Token
}

// MaterialNetwork is the resource the renderer pulls for a material sprim.
type MaterialNetwork struct {
	Nodes         []MaterialNode
	Relationships []MaterialRelationship
	Terminals     map[common.Token]common.Path
	PrimvarNames  []common.Token
}

// IsEmpty reports whether the network has no nodes.
func (n *MaterialNetwork) IsEmpty() bool {
	return n == nil || len(n.Nodes) == 0
}

// Surface returns the node bound to the surface terminal.
//
// Returns:
//   - *MaterialNode: the surface node, or nil
func (n *MaterialNetwork) Surface() *MaterialNode {
	if n == nil {
		return nil
	}
	path, ok := n.Terminals[TerminalSurface]
	if !ok {
		return nil
	}
	for i := range n.Nodes {
		if n.Nodes[i].Path == path {
			return &n.Nodes[i]
		}
	}
	return nil
}

var (
	fallbackNetworkOnce sync.Once
	fallbackNetwork     *MaterialNetwork
)

// NewDefaultMaterialNetwork builds the default material: a gray preview surface used
// while the host's default-material display override is on. Callers build it once per
// delegate and share the result read-only.
//
// Parameters:
//   - id: the identity of the default material sprim
//
// Returns:
//   - *MaterialNetwork: the default material network
func NewDefaultMaterialNetwork(id common.Path) *MaterialNetwork {
	return PreviewSurfaceNetwork(id,
		mgl64.Vec3{defaultMaterialGray, defaultMaterialGray, defaultMaterialGray}, 1, 0, 0.5)
}

// FallbackMaterialNetwork returns the resource of the fallback material: a preview
// surface whose diffuse color reads the prim's display color. It is built once per
// process and must not be modified.
//
// Returns:
//   - *MaterialNetwork: the fallback material network
func FallbackMaterialNetwork() *MaterialNetwork {
	fallbackNetworkOnce.Do(func() {
		surface := common.Path("/__fallback_material__/surface")
		reader := common.Path("/__fallback_material__/displayColor")
		fallbackNetwork = &MaterialNetwork{
			Nodes: []MaterialNode{
				{
					Path:       reader,
					Identifier: PrimvarReader,
					Parameters: map[common.Token]any{InputVarname: common.TokenDisplayColor},
				},
				{
					Path:       surface,
					Identifier: PreviewSurface,
					Parameters: map[common.Token]any{InputOpacity: 1.0, InputRoughness: 1.0},
				},
			},
			Relationships: []MaterialRelationship{
				{InputID: surface, InputName: InputDiffuseColor, OutputID: reader, OutputName: OutputResult},
			},
			Terminals:    map[common.Token]common.Path{TerminalSurface: surface},
			PrimvarNames: []common.Token{common.TokenDisplayColor},
		}
	})
	return fallbackNetwork
}

// PreviewSurfaceNetwork builds a single-node preview surface network.
//
// Parameters:
//   - id: the material identity the node paths are derived from
//   - diffuse: the diffuse color
//   - opacity: the opacity
//   - metallic: the metallic factor
//   - roughness: the roughness factor
//
// Returns:
//   - *MaterialNetwork: the network
func PreviewSurfaceNetwork(id common.Path, diffuse mgl64.Vec3, opacity, metallic, roughness float64) *MaterialNetwork {
	surface := id.AppendChild("surface")
	return &MaterialNetwork{
		Nodes: []MaterialNode{{
			Path:       surface,
			Identifier: PreviewSurface,
			Parameters: map[common.Token]any{
				InputDiffuseColor: diffuse,
				InputOpacity:      opacity,
				InputMetallic:     metallic,
				InputRoughness:    roughness,
			},
		}},
		Terminals: map[common.Token]common.Path{TerminalSurface: surface},
	}
}
