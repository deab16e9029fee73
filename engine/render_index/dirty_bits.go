package render_index

// DirtyBits is a bitmask telling the render index's change tracker which attribute
// categories of a prim need to be pulled again before the next draw.
type DirtyBits uint32

// Clean marks nothing.
const Clean DirtyBits = 0

// AllDirty marks every category of a prim.
const AllDirty DirtyBits = ^DirtyBits(0)

// Rprim dirty bits.
const (
	DirtyPrimID DirtyBits = 1 << iota
	DirtyExtent
	DirtyDisplayStyle
	DirtyPoints
	DirtyPrimvar
	DirtyMaterialID
	DirtyTopology
	DirtyTransform
	DirtyVisibility
	DirtyNormals
	DirtyDoubleSided
	DirtyCullStyle
	DirtySubdivTags
	DirtyWidths
	DirtyInstancer
	DirtyInstanceIndex
	DirtyRepr
	DirtyRenderTag
)

// Sprim dirty bits. Sprims use their own bit space; values overlap the rprim bits.
const (
	DirtySprimTransform DirtyBits = 1 << iota
	DirtySprimParams
	DirtySprimResource
	DirtySprimShadowParams
	DirtySprimCollection
	DirtySprimVisibility
)

// Has reports whether every bit of mask is set in b.
//
// Parameters:
//   - mask: the bits to test
//
// Returns:
//   - bool: true if all bits of mask are set
func (b DirtyBits) Has(mask DirtyBits) bool {
	return b&mask == mask
}

// Any reports whether at least one bit of mask is set in b.
//
// Parameters:
//   - mask: the bits to test
//
// Returns:
//   - bool: true if any bit of mask is set
func (b DirtyBits) Any(mask DirtyBits) bool {
	return b&mask != 0
}
