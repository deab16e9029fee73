package host

import (
	"github.com/go-gl/mathgl/mgl64"
)

// memoryNode is the Node implementation of the in-memory host.
// Every field is guarded by the owning host's mutex.
type memoryNode struct {
	host *memoryHost

	handle   Handle
	name     string
	typeName string
	kind     Kind

	parents  []*memoryNode
	children []*memoryNode

	attrs    map[string]any
	local    mgl64.Mat4
	material *memoryNode

	visible      bool
	intermediate bool
	external     bool
	alive        bool
}

var _ Node = &memoryNode{}

func (n *memoryNode) Handle() Handle {
	return n.handle
}

func (n *memoryNode) Valid() bool {
	n.host.mu.RLock()
	defer n.host.mu.RUnlock()
	return n.alive
}

func (n *memoryNode) Kind() Kind {
	return n.kind
}

func (n *memoryNode) TypeName() string {
	return n.typeName
}

func (n *memoryNode) Name() string {
	return n.name
}

func (n *memoryNode) Paths() []string {
	n.host.mu.RLock()
	defer n.host.mu.RUnlock()
	if !n.alive || !n.inDag() {
		return nil
	}
	return n.pathsLocked()
}

func (n *memoryNode) Children() []Node {
	n.host.mu.RLock()
	defer n.host.mu.RUnlock()
	out := make([]Node, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	return out
}

func (n *memoryNode) IsIntermediate() bool {
	n.host.mu.RLock()
	defer n.host.mu.RUnlock()
	return n.intermediate
}

func (n *memoryNode) IsExternal() bool {
	n.host.mu.RLock()
	defer n.host.mu.RUnlock()
	return n.external
}

func (n *memoryNode) Attribute(name string) (any, bool) {
	n.host.mu.RLock()
	defer n.host.mu.RUnlock()
	v, ok := n.attrs[name]
	return v, ok
}

func (n *memoryNode) Visible() bool {
	n.host.mu.RLock()
	defer n.host.mu.RUnlock()
	for c := n; c != nil; {
		if !c.visible {
			return false
		}
		if len(c.parents) == 0 {
			break
		}
		c = c.parents[0]
	}
	return true
}

func (n *memoryNode) WorldMatrix(instance int) mgl64.Mat4 {
	n.host.mu.RLock()
	defer n.host.mu.RUnlock()
	ms := n.worldMatricesLocked()
	if instance < 0 || instance >= len(ms) {
		return n.local
	}
	return ms[instance]
}

func (n *memoryNode) Material(instance int) Node {
	n.host.mu.RLock()
	defer n.host.mu.RUnlock()
	if n.material == nil || !n.material.alive {
		return nil
	}
	return n.material
}

// inDag reports whether the node takes part in the DAG hierarchy.
func (n *memoryNode) inDag() bool {
	return n.kind != KindShadingEngine && n.kind != KindSet
}

// pathsLocked enumerates every full path to the node, following parents in order.
func (n *memoryNode) pathsLocked() []string {
	if len(n.parents) == 0 {
		return []string{"|" + n.name}
	}
	var out []string
	for _, p := range n.parents {
		for _, pp := range p.pathsLocked() {
			out = append(out, pp+"|"+n.name)
		}
	}
	return out
}

// worldMatricesLocked returns the world transform of every path, parallel to pathsLocked.
func (n *memoryNode) worldMatricesLocked() []mgl64.Mat4 {
	if len(n.parents) == 0 {
		return []mgl64.Mat4{n.local}
	}
	var out []mgl64.Mat4
	for _, p := range n.parents {
		for _, pm := range p.worldMatricesLocked() {
			out = append(out, pm.Mul4(n.local))
		}
	}
	return out
}
