// Package host defines the inbound contract between the bridge and the live host
// application: node handles, the host-side change callback registry, the event sink the
// delegate registers itself as, and the per-frame draw context and render-item delta batch.
package host

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl64"
)

// Handle is the host-assigned identity of a node. It stays stable for the lifetime of
// the node and is never reused while the node is alive. The zero Handle is invalid.
type Handle uint64

// CallbackID identifies a registered host callback so it can be removed exactly once.
type CallbackID uint64

// Kind classifies a host node.
type Kind int

const (
	// KindOther is any node the bridge does not translate.
	KindOther Kind = iota
	// KindTransform is a DAG transform with children.
	KindTransform
	// KindMesh is a polygonal mesh shape.
	KindMesh
	// KindCurve is a curve shape.
	KindCurve
	// KindPoints is a particle or point cloud shape.
	KindPoints
	// KindLight is a light shape.
	KindLight
	// KindCamera is a camera shape.
	KindCamera
	// KindShadingEngine is a shading group binding surfaces to a surface shader.
	KindShadingEngine
	// KindSet is an object set, for example the default light set.
	KindSet
)

// String returns a readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindTransform:
		return "transform"
	case KindMesh:
		return "mesh"
	case KindCurve:
		return "curve"
	case KindPoints:
		return "points"
	case KindLight:
		return "light"
	case KindCamera:
		return "camera"
	case KindShadingEngine:
		return "shadingEngine"
	case KindSet:
		return "set"
	default:
		return "other"
	}
}

// IsShape reports whether nodes of kind k are drawable shapes.
func (k Kind) IsShape() bool {
	return k == KindMesh || k == KindCurve || k == KindPoints
}

// CallbackKind selects which host-side change notification a callback listens to.
type CallbackKind int

const (
	// CallbackNodeDirty fires when any plug of the node is dirtied.
	CallbackNodeDirty CallbackKind = iota
	// CallbackAttributeChanged fires when an attribute value is set.
	CallbackAttributeChanged
	// CallbackTransformChanged fires when the world matrix of the node changes.
	CallbackTransformChanged
	// CallbackInstanceChanged fires when instances of the node are added or removed.
	CallbackInstanceChanged
	// CallbackNameChanged fires when the node is renamed.
	CallbackNameChanged
)

// Node is a handle to one host scene entity.
//
// Implementations must be cheap to copy around and safe to hold after the host node
// is deleted; Valid reports whether the handle still refers to a live node.
type Node interface {
	// Handle returns the host-assigned identity of the node.
	//
	// Returns:
	//   - Handle: the node identity
	Handle() Handle

	// Valid reports whether the node is still alive in the host.
	//
	// Returns:
	//   - bool: true if the handle refers to a live node
	Valid() bool

	// Kind returns the classification of the node.
	//
	// Returns:
	//   - Kind: the node kind
	Kind() Kind

	// TypeName returns the host type name ("mesh", "directionalLight", "lambert", ...).
	// The adapter registry is keyed by this name.
	//
	// Returns:
	//   - string: the host type name
	TypeName() string

	// Name returns the short node name.
	//
	// Returns:
	//   - string: the node name
	Name() string

	// Paths returns every full DAG path to the node, the master path first.
	// Nodes outside the DAG return nil. More than one path means the node is instanced.
	//
	// Returns:
	//   - []string: the full DAG paths ("|grp|shape")
	Paths() []string

	// Children returns the direct DAG children of the node.
	//
	// Returns:
	//   - []Node: the children
	Children() []Node

	// IsIntermediate reports whether the node is an intermediate (construction history) object.
	//
	// Returns:
	//   - bool: true if intermediate
	IsIntermediate() bool

	// IsExternal reports whether the node is owned by an external integration bridge
	// that already represents it in the renderer.
	//
	// Returns:
	//   - bool: true if externally owned
	IsExternal() bool

	// Attribute returns the current value of a named attribute.
	//
	// Parameters:
	//   - name: the attribute name
	//
	// Returns:
	//   - any: the value
	//   - bool: false if the node has no such attribute
	Attribute(name string) (any, bool)

	// Visible reports whether the node and all of its ancestors are visible.
	//
	// Returns:
	//   - bool: true if visible
	Visible() bool

	// WorldMatrix returns the world transform of the given instance of the node.
	//
	// Parameters:
	//   - instance: index into Paths
	//
	// Returns:
	//   - mgl64.Mat4: the world transform
	WorldMatrix(instance int) mgl64.Mat4

	// Material returns the shading engine bound to the given instance, or nil.
	//
	// Parameters:
	//   - instance: index into Paths
	//
	// Returns:
	//   - Node: the bound shading engine or nil
	Material(instance int) Node
}

// Plug is one end of a host connection.
type Plug struct {
	// Node is the node owning the plug.
	Node Node
	// Attribute is the plug's attribute name.
	Attribute string
}

// EventSink receives host scene lifecycle notifications.
//
// Handlers run in host-internal contexts at unpredictable times relative to the frame
// loop. Implementations must only record the event for later processing and must never
// mutate renderer state from inside a handler.
type EventSink interface {
	// NodeAdded is called after a DAG node is created.
	//
	// Parameters:
	//   - n: the new node
	NodeAdded(n Node)

	// NodeRemoved is called before a DAG node is deleted.
	//
	// Parameters:
	//   - n: the node being deleted
	NodeRemoved(n Node)

	// ConnectionChanged is called when a connection is made or broken.
	//
	// Parameters:
	//   - src: the source plug
	//   - dst: the destination plug
	//   - made: true if the connection was made, false if broken
	ConnectionChanged(src, dst Plug, made bool)
}

// Host is the live host application as seen by the bridge.
type Host interface {
	// Traverse walks every DAG node depth-first, underworld included, calling fn for
	// each one until fn returns false.
	//
	// Parameters:
	//   - fn: the visitor
	Traverse(fn func(n Node) bool)

	// NodeByPath resolves a full DAG path to its node.
	//
	// Parameters:
	//   - path: the full DAG path
	//
	// Returns:
	//   - Node: the node, or nil if the path does not resolve
	NodeByPath(path string) Node

	// Subscribe registers sink for node-added, node-removed and connection-changed events.
	//
	// Parameters:
	//   - sink: the receiver of lifecycle events
	//
	// Returns:
	//   - CallbackID: the registration, removed with RemoveCallback
	//   - error: error if the host refused the registration
	Subscribe(sink EventSink) (CallbackID, error)

	// AddNodeCallback registers fn for one kind of change notification on n.
	//
	// Parameters:
	//   - n: the watched node
	//   - kind: the notification kind
	//   - fn: the handler
	//
	// Returns:
	//   - CallbackID: the registration, removed with RemoveCallback
	//   - error: error if the node is invalid
	AddNodeCallback(n Node, kind CallbackKind, fn func(n Node)) (CallbackID, error)

	// RemoveCallback unregisters a callback or subscription.
	//
	// Parameters:
	//   - id: the registration to remove
	//
	// Returns:
	//   - error: error if the registration does not exist
	RemoveCallback(id CallbackID) error

	// WireframeColor returns the color-managed wireframe color the host draws n with.
	//
	// Parameters:
	//   - n: the node
	//
	// Returns:
	//   - wgpu.Color: the wireframe color
	WireframeColor(n Node) wgpu.Color

	// DisplayStatus returns the selection/template display status of n.
	//
	// Parameters:
	//   - n: the node
	//
	// Returns:
	//   - DisplayStatus: the display status
	DisplayStatus(n Node) DisplayStatus
}

// DisplayStatus is the host's selection and template highlight state of a node.
type DisplayStatus int

const (
	// StatusNone is the default, unselected state.
	StatusNone DisplayStatus = iota
	// StatusActive is a selected node.
	StatusActive
	// StatusLead is the last selected node.
	StatusLead
	// StatusHilite is a highlighted node.
	StatusHilite
	// StatusTemplate is a templated node.
	StatusTemplate
	// StatusDormant is an unselected node drawn in the dormant color.
	StatusDormant
)
