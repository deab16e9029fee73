package host

import (
	"fmt"
	"slices"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl64"
)

// DormantWireframeColor is the wireframe color of unselected nodes.
var DormantWireframeColor = wgpu.Color{R: 0, G: 0.016, B: 0.376, A: 1}

// ActiveWireframeColor is the wireframe color of selected nodes.
var ActiveWireframeColor = wgpu.Color{R: 0.26, G: 1, B: 0.64, A: 1}

// nodeCallback is one registration made through AddNodeCallback.
type nodeCallback struct {
	handle Handle
	kind   CallbackKind
	fn     func(Node)
}

// memoryHost is the implementation of the MemoryHost interface.
type memoryHost struct {
	mu *sync.RWMutex

	nextHandle Handle
	nextID     CallbackID

	nodes map[Handle]*memoryNode
	roots []*memoryNode

	sinks     map[CallbackID]EventSink
	callbacks map[CallbackID]*nodeCallback

	wireframe map[Handle]wgpu.Color
	status    map[Handle]DisplayStatus

	added   int
	removed int
}

// MemoryHost is an in-process Host whose scene is edited through explicit calls.
//
// Every edit fires the same notifications a live host would: lifecycle events to
// subscribed sinks and per-node change callbacks. Callback registrations are counted
// so tests can assert that adapters never leak host callbacks.
type MemoryHost interface {
	Host

	// CreateNode creates a node below parent and announces it to subscribed sinks.
	// Shading engines and sets live outside the DAG and ignore parent.
	//
	// Parameters:
	//   - parent: the parent DAG node, nil for the world
	//   - name: the short node name
	//   - typeName: the host type name
	//   - kind: the node kind
	//
	// Returns:
	//   - Node: the new node
	CreateNode(parent Node, name, typeName string, kind Kind) Node

	// DeleteNode announces the removal of n and its descendants, then invalidates them.
	//
	// Parameters:
	//   - n: the node to delete
	DeleteNode(n Node)

	// AddInstance parents n below an additional parent, creating a new instance path.
	//
	// Parameters:
	//   - n: the instanced node
	//   - parent: the additional parent
	//
	// Returns:
	//   - error: error if either node is invalid or the instance already exists
	AddInstance(n Node, parent Node) error

	// SetAttribute stores an attribute value and fires attribute-changed and dirty callbacks.
	//
	// Parameters:
	//   - n: the node
	//   - name: the attribute name
	//   - value: the new value
	SetAttribute(n Node, name string, value any)

	// SetLocalMatrix sets the local transform of n and fires transform callbacks on n
	// and every descendant.
	//
	// Parameters:
	//   - n: the node
	//   - m: the local transform
	SetLocalMatrix(n Node, m mgl64.Mat4)

	// SetVisible sets the visibility flag of n.
	//
	// Parameters:
	//   - n: the node
	//   - visible: the new visibility
	SetVisible(n Node, visible bool)

	// BindMaterial binds a shading engine to every instance of n; nil unbinds.
	//
	// Parameters:
	//   - n: the shape
	//   - shadingEngine: the shading engine, or nil
	BindMaterial(n Node, shadingEngine Node)

	// SetIntermediate flags n as an intermediate object.
	SetIntermediate(n Node, intermediate bool)

	// SetExternal flags n as owned by an external integration bridge.
	SetExternal(n Node, external bool)

	// SetDisplayStatus sets the selection status of n; active statuses switch the
	// wireframe color to the active color.
	SetDisplayStatus(n Node, status DisplayStatus)

	// Connect makes or breaks a connection and announces it to subscribed sinks.
	//
	// Parameters:
	//   - src: the source plug
	//   - dst: the destination plug
	//   - made: true to connect, false to disconnect
	Connect(src, dst Plug, made bool)

	// LiveCallbacks returns the number of node callbacks currently registered.
	//
	// Returns:
	//   - int: the live registration count
	LiveCallbacks() int

	// CallbackTotals returns how many node callbacks were ever added and removed.
	//
	// Returns:
	//   - int: registrations added
	//   - int: registrations removed
	CallbackTotals() (added, removed int)

	// Subscribers returns the number of subscribed event sinks.
	//
	// Returns:
	//   - int: the subscriber count
	Subscribers() int
}

var _ MemoryHost = &memoryHost{}

// NewMemoryHost creates an empty in-memory host.
//
// Returns:
//   - MemoryHost: the new host
func NewMemoryHost() MemoryHost {
	return &memoryHost{
		mu:        &sync.RWMutex{},
		nodes:     make(map[Handle]*memoryNode),
		sinks:     make(map[CallbackID]EventSink),
		callbacks: make(map[CallbackID]*nodeCallback),
		wireframe: make(map[Handle]wgpu.Color),
		status:    make(map[Handle]DisplayStatus),
	}
}

func (h *memoryHost) Traverse(fn func(n Node) bool) {
	h.mu.RLock()
	var order []*memoryNode
	seen := make(map[Handle]bool)
	var walk func(n *memoryNode)
	walk = func(n *memoryNode) {
		if seen[n.handle] {
			return
		}
		seen[n.handle] = true
		order = append(order, n)
		for _, c := range n.children {
			walk(c)
		}
	}
	for _, r := range h.roots {
		walk(r)
	}
	h.mu.RUnlock()

	for _, n := range order {
		if !fn(n) {
			return
		}
	}
}

func (h *memoryHost) NodeByPath(path string) Node {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, n := range h.nodes {
		if !n.alive || !n.inDag() {
			continue
		}
		if slices.Contains(n.pathsLocked(), path) {
			return n
		}
	}
	return nil
}

func (h *memoryHost) Subscribe(sink EventSink) (CallbackID, error) {
	if sink == nil {
		return 0, fmt.Errorf("host: cannot subscribe a nil sink")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.sinks[h.nextID] = sink
	return h.nextID, nil
}

func (h *memoryHost) AddNodeCallback(n Node, kind CallbackKind, fn func(n Node)) (CallbackID, error) {
	if n == nil || !n.Valid() {
		return 0, fmt.Errorf("host: cannot add callback to an invalid node")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.callbacks[h.nextID] = &nodeCallback{handle: n.Handle(), kind: kind, fn: fn}
	h.added++
	return h.nextID, nil
}

func (h *memoryHost) RemoveCallback(id CallbackID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sinks[id]; ok {
		delete(h.sinks, id)
		return nil
	}
	if _, ok := h.callbacks[id]; ok {
		delete(h.callbacks, id)
		h.removed++
		return nil
	}
	return fmt.Errorf("host: callback %d not registered", id)
}

func (h *memoryHost) WireframeColor(n Node) wgpu.Color {
	if n == nil {
		return DormantWireframeColor
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.wireframe[n.Handle()]; ok {
		return c
	}
	return DormantWireframeColor
}

func (h *memoryHost) DisplayStatus(n Node) DisplayStatus {
	if n == nil {
		return StatusNone
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status[n.Handle()]
}

func (h *memoryHost) CreateNode(parent Node, name, typeName string, kind Kind) Node {
	h.mu.Lock()
	h.nextHandle++
	n := &memoryNode{
		host:     h,
		handle:   h.nextHandle,
		name:     name,
		typeName: typeName,
		kind:     kind,
		attrs:    make(map[string]any),
		local:    mgl64.Ident4(),
		visible:  true,
		alive:    true,
	}
	h.nodes[n.handle] = n
	if n.inDag() {
		if p := h.lookupLocked(parent); p != nil {
			n.parents = append(n.parents, p)
			p.children = append(p.children, n)
		} else {
			h.roots = append(h.roots, n)
		}
	}
	sinks := h.sinksLocked()
	h.mu.Unlock()

	if n.inDag() {
		for _, s := range sinks {
			s.NodeAdded(n)
		}
	}
	return n
}

func (h *memoryHost) DeleteNode(n Node) {
	h.mu.Lock()
	mn := h.lookupLocked(n)
	if mn == nil {
		h.mu.Unlock()
		return
	}
	var doomed []*memoryNode
	dead := make(map[*memoryNode]bool)
	var collect func(m *memoryNode)
	collect = func(m *memoryNode) {
		doomed = append(doomed, m)
		dead[m] = true
		for _, c := range m.children {
			// an instanced child survives while one of its parents does
			if !dead[c] && !slices.ContainsFunc(c.parents, func(p *memoryNode) bool { return !dead[p] }) {
				collect(c)
			}
		}
	}
	collect(mn)
	sinks := h.sinksLocked()
	h.mu.Unlock()

	// Removal is announced while the nodes are still valid.
	for i := len(doomed) - 1; i >= 0; i-- {
		if !doomed[i].inDag() {
			continue
		}
		for _, s := range sinks {
			s.NodeRemoved(doomed[i])
		}
	}

	h.mu.Lock()
	var orphaned []*memoryNode
	for _, m := range doomed {
		for _, c := range m.children {
			if !dead[c] && !slices.Contains(orphaned, c) {
				orphaned = append(orphaned, c)
			}
		}
	}
	for _, m := range doomed {
		m.alive = false
		for _, p := range m.parents {
			p.children = slices.DeleteFunc(p.children, func(c *memoryNode) bool { return c == m })
		}
		m.parents = nil
		m.children = nil
		h.roots = slices.DeleteFunc(h.roots, func(r *memoryNode) bool { return r == m })
		delete(h.nodes, m.handle)
	}
	type instanceChange struct {
		node *memoryNode
		fns  []func(Node)
	}
	var changes []instanceChange
	for _, c := range orphaned {
		c.parents = slices.DeleteFunc(c.parents, func(p *memoryNode) bool { return dead[p] })
		changes = append(changes, instanceChange{node: c, fns: h.callbacksLocked(c.handle, CallbackInstanceChanged)})
	}
	h.mu.Unlock()

	for _, ch := range changes {
		for _, fn := range ch.fns {
			fn(ch.node)
		}
	}
}

func (h *memoryHost) AddInstance(n Node, parent Node) error {
	h.mu.Lock()
	mn := h.lookupLocked(n)
	mp := h.lookupLocked(parent)
	if mn == nil || mp == nil {
		h.mu.Unlock()
		return fmt.Errorf("host: cannot instance an invalid node")
	}
	if slices.Contains(mn.parents, mp) {
		h.mu.Unlock()
		return fmt.Errorf("host: %s is already a child of %s", mn.name, mp.name)
	}
	if len(mn.parents) == 0 {
		h.roots = slices.DeleteFunc(h.roots, func(r *memoryNode) bool { return r == mn })
	}
	mn.parents = append(mn.parents, mp)
	mp.children = append(mp.children, mn)
	fns := h.callbacksLocked(mn.handle, CallbackInstanceChanged)
	h.mu.Unlock()

	for _, fn := range fns {
		fn(mn)
	}
	return nil
}

func (h *memoryHost) SetAttribute(n Node, name string, value any) {
	h.mu.Lock()
	mn := h.lookupLocked(n)
	if mn == nil {
		h.mu.Unlock()
		return
	}
	mn.attrs[name] = value
	fns := h.callbacksLocked(mn.handle, CallbackAttributeChanged, CallbackNodeDirty)
	h.mu.Unlock()

	for _, fn := range fns {
		fn(mn)
	}
}

func (h *memoryHost) SetLocalMatrix(n Node, m mgl64.Mat4) {
	h.mu.Lock()
	mn := h.lookupLocked(n)
	if mn == nil {
		h.mu.Unlock()
		return
	}
	mn.local = m
	var affected []*memoryNode
	var collect func(c *memoryNode)
	collect = func(c *memoryNode) {
		if slices.Contains(affected, c) {
			return
		}
		affected = append(affected, c)
		for _, cc := range c.children {
			collect(cc)
		}
	}
	collect(mn)
	var fns []func(Node)
	var targets []*memoryNode
	for _, c := range affected {
		for _, fn := range h.callbacksLocked(c.handle, CallbackTransformChanged) {
			fns = append(fns, fn)
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for i, fn := range fns {
		fn(targets[i])
	}
}

func (h *memoryHost) SetVisible(n Node, visible bool) {
	h.mu.Lock()
	mn := h.lookupLocked(n)
	if mn == nil {
		h.mu.Unlock()
		return
	}
	mn.visible = visible
	fns := h.callbacksLocked(mn.handle, CallbackNodeDirty)
	h.mu.Unlock()

	for _, fn := range fns {
		fn(mn)
	}
}

func (h *memoryHost) BindMaterial(n Node, shadingEngine Node) {
	h.mu.Lock()
	mn := h.lookupLocked(n)
	if mn == nil {
		h.mu.Unlock()
		return
	}
	mn.material = h.lookupLocked(shadingEngine)
	fns := h.callbacksLocked(mn.handle, CallbackNodeDirty)
	h.mu.Unlock()

	for _, fn := range fns {
		fn(mn)
	}
}

func (h *memoryHost) SetIntermediate(n Node, intermediate bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if mn := h.lookupLocked(n); mn != nil {
		mn.intermediate = intermediate
	}
}

func (h *memoryHost) SetExternal(n Node, external bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if mn := h.lookupLocked(n); mn != nil {
		mn.external = external
	}
}

func (h *memoryHost) SetDisplayStatus(n Node, status DisplayStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	mn := h.lookupLocked(n)
	if mn == nil {
		return
	}
	h.status[mn.handle] = status
	switch status {
	case StatusActive, StatusLead, StatusHilite:
		h.wireframe[mn.handle] = ActiveWireframeColor
	default:
		delete(h.wireframe, mn.handle)
	}
}

func (h *memoryHost) Connect(src, dst Plug, made bool) {
	h.mu.RLock()
	sinks := h.sinksLocked()
	h.mu.RUnlock()
	for _, s := range sinks {
		s.ConnectionChanged(src, dst, made)
	}
}

func (h *memoryHost) LiveCallbacks() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.callbacks)
}

func (h *memoryHost) CallbackTotals() (int, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.added, h.removed
}

func (h *memoryHost) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}

// lookupLocked resolves n to a live node owned by this host. Must be called with mu held.
func (h *memoryHost) lookupLocked(n Node) *memoryNode {
	if n == nil {
		return nil
	}
	mn, ok := h.nodes[n.Handle()]
	if !ok || !mn.alive {
		return nil
	}
	return mn
}

// sinksLocked snapshots the subscribed sinks in registration order. Must be called with mu held.
func (h *memoryHost) sinksLocked() []EventSink {
	ids := make([]CallbackID, 0, len(h.sinks))
	for id := range h.sinks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]EventSink, 0, len(ids))
	for _, id := range ids {
		out = append(out, h.sinks[id])
	}
	return out
}

// callbacksLocked snapshots the callbacks of handle matching any of kinds in
// registration order. Must be called with mu held.
func (h *memoryHost) callbacksLocked(handle Handle, kinds ...CallbackKind) []func(Node) {
	var ids []CallbackID
	for id, cb := range h.callbacks {
		if cb.handle == handle && slices.Contains(kinds, cb.kind) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]func(Node), 0, len(ids))
	for _, id := range ids {
		out = append(out, h.callbacks[id].fn)
	}
	return out
}
