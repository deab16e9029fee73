package render_index

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-bridge/common"
)

// primCategory separates the three namespaces of the index.
type primCategory int

const (
	categoryRprim primCategory = iota
	categorySprim
	categoryInstancer
)

// primEntry is one prim tracked by the in-memory index.
type primEntry struct {
	category    primCategory
	primType    PrimType
	instancerID common.Path
	dirty       DirtyBits
}

// memoryIndex is the implementation of the MemoryIndex interface.
type memoryIndex struct {
	mu *sync.Mutex

	rprimTypes map[PrimType]bool
	sprimTypes map[PrimType]bool

	prims      map[common.Path]*primEntry
	rprimOrder []common.Path

	insertCounts map[common.Path]int
	removeCounts map[common.Path]int
}

// MemoryIndex is an in-process RenderIndex with an inspectable change tracker.
//
// It backs the bridge when no external renderer is attached (tests, headless
// validation runs, the demo) and records how many times each identity was inserted
// and removed so reconciliation behaviour can be asserted.
type MemoryIndex interface {
	RenderIndex

	// Has reports whether a prim of any category exists for id.
	//
	// Parameters:
	//   - id: the identity path
	//
	// Returns:
	//   - bool: true if present
	Has(id common.Path) bool

	// PrimType returns the type a prim was inserted with.
	//
	// Parameters:
	//   - id: the identity path
	//
	// Returns:
	//   - PrimType: the prim type
	//   - bool: false if the prim does not exist
	PrimType(id common.Path) (PrimType, bool)

	// InstancerOf returns the instancer an rprim was inserted with.
	//
	// Parameters:
	//   - id: the rprim identity path
	//
	// Returns:
	//   - common.Path: the instancer identity, or the empty path
	InstancerOf(id common.Path) common.Path

	// DirtyBits returns the accumulated dirty bits of a prim.
	//
	// Parameters:
	//   - id: the identity path
	//
	// Returns:
	//   - DirtyBits: the dirty bits, Clean for unknown identities
	DirtyBits(id common.Path) DirtyBits

	// MarkClean clears the dirty bits of a prim, as the renderer does after a sync.
	//
	// Parameters:
	//   - id: the identity path
	MarkClean(id common.Path)

	// MarkAllClean clears the dirty bits of every prim.
	MarkAllClean()

	// InsertCount returns how many times id was inserted.
	//
	// Parameters:
	//   - id: the identity path
	//
	// Returns:
	//   - int: the insertion count
	InsertCount(id common.Path) int

	// RemoveCount returns how many times id was removed.
	//
	// Parameters:
	//   - id: the identity path
	//
	// Returns:
	//   - int: the removal count
	RemoveCount(id common.Path) int

	// Len returns the number of prims of every category.
	//
	// Returns:
	//   - int: the prim count
	Len() int
}

var _ MemoryIndex = &memoryIndex{}

// NewMemoryIndex creates an empty in-memory render index. By default every prim
// type declared in this package is supported.
//
// Parameters:
//   - options: variadic list of IndexBuilderOption functions to configure the index
//
// Returns:
//   - MemoryIndex: the new index
func NewMemoryIndex(options ...IndexBuilderOption) MemoryIndex {
	idx := &memoryIndex{
		mu: &sync.Mutex{},
		rprimTypes: map[PrimType]bool{
			PrimTypeMesh:        true,
			PrimTypeBasisCurves: true,
			PrimTypePoints:      true,
		},
		sprimTypes: map[PrimType]bool{
			PrimTypeCamera:       true,
			PrimTypeSimpleLight:  true,
			PrimTypeDistantLight: true,
			PrimTypeSphereLight:  true,
			PrimTypeDomeLight:    true,
			PrimTypeMaterial:     true,
		},
		prims:        make(map[common.Path]*primEntry),
		insertCounts: make(map[common.Path]int),
		removeCounts: make(map[common.Path]int),
	}
	for _, opt := range options {
		opt(idx)
	}
	return idx
}

func (m *memoryIndex) IsRprimTypeSupported(t PrimType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rprimTypes[t]
}

func (m *memoryIndex) IsSprimTypeSupported(t PrimType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sprimTypes[t]
}

func (m *memoryIndex) InsertRprim(t PrimType, id common.Path, instancerID common.Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.rprimTypes[t] {
		return fmt.Errorf("render index: rprim type %q not supported", t)
	}
	if err := m.insertLocked(id, &primEntry{category: categoryRprim, primType: t, instancerID: instancerID}); err != nil {
		return err
	}
	m.rprimOrder = append(m.rprimOrder, id)
	return nil
}

func (m *memoryIndex) InsertSprim(t PrimType, id common.Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sprimTypes[t] {
		return fmt.Errorf("render index: sprim type %q not supported", t)
	}
	return m.insertLocked(id, &primEntry{category: categorySprim, primType: t})
}

func (m *memoryIndex) InsertInstancer(id common.Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(id, &primEntry{category: categoryInstancer})
}

func (m *memoryIndex) RemoveRprim(id common.Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.removeLocked(id, categoryRprim); err != nil {
		return err
	}
	if i := slices.Index(m.rprimOrder, id); i >= 0 {
		m.rprimOrder = slices.Delete(m.rprimOrder, i, i+1)
	}
	return nil
}

func (m *memoryIndex) RemoveSprim(t PrimType, id common.Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.prims[id]; ok && e.category == categorySprim && e.primType != t {
		return fmt.Errorf("render index: sprim %s has type %q, not %q", id, e.primType, t)
	}
	return m.removeLocked(id, categorySprim)
}

func (m *memoryIndex) RemoveInstancer(id common.Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(id, categoryInstancer)
}

func (m *memoryIndex) MarkRprimDirty(id common.Path, bits DirtyBits) {
	m.markDirty(id, categoryRprim, bits)
}

func (m *memoryIndex) MarkSprimDirty(id common.Path, bits DirtyBits) {
	m.markDirty(id, categorySprim, bits)
}

func (m *memoryIndex) MarkInstancerDirty(id common.Path, bits DirtyBits) {
	m.markDirty(id, categoryInstancer, bits)
}

func (m *memoryIndex) RprimIDs() []common.Path {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.rprimOrder)
}

func (m *memoryIndex) Has(id common.Path) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.prims[id]
	return ok
}

func (m *memoryIndex) PrimType(id common.Path) (PrimType, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.prims[id]
	if !ok {
		return "", false
	}
	return e.primType, true
}

func (m *memoryIndex) InstancerOf(id common.Path) common.Path {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.prims[id]; ok {
		return e.instancerID
	}
	return common.EmptyPath
}

func (m *memoryIndex) DirtyBits(id common.Path) DirtyBits {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.prims[id]; ok {
		return e.dirty
	}
	return Clean
}

func (m *memoryIndex) MarkClean(id common.Path) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.prims[id]; ok {
		e.dirty = Clean
	}
}

func (m *memoryIndex) MarkAllClean() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.prims {
		e.dirty = Clean
	}
}

func (m *memoryIndex) InsertCount(id common.Path) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertCounts[id]
}

func (m *memoryIndex) RemoveCount(id common.Path) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeCounts[id]
}

func (m *memoryIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prims)
}

// insertLocked adds e under id; new prims start fully dirty so the renderer pulls
// every attribute once. Must be called with mu held.
func (m *memoryIndex) insertLocked(id common.Path, e *primEntry) error {
	if id.IsEmpty() {
		return fmt.Errorf("render index: cannot insert the empty path")
	}
	if _, ok := m.prims[id]; ok {
		return fmt.Errorf("render index: prim %s already exists", id)
	}
	e.dirty = AllDirty
	m.prims[id] = e
	m.insertCounts[id]++
	return nil
}

// removeLocked deletes the prim id if it belongs to category. Must be called with mu held.
func (m *memoryIndex) removeLocked(id common.Path, category primCategory) error {
	e, ok := m.prims[id]
	if !ok || e.category != category {
		return fmt.Errorf("render index: prim %s does not exist", id)
	}
	delete(m.prims, id)
	m.removeCounts[id]++
	return nil
}

// markDirty ORs bits into the prim id if it belongs to category.
func (m *memoryIndex) markDirty(id common.Path, category primCategory, bits DirtyBits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.prims[id]; ok && e.category == category {
		e.dirty |= bits
	}
}
