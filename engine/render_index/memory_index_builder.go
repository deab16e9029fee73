package render_index

// IndexBuilderOption is a functional option applied to an in-memory render index during construction via NewMemoryIndex.
type IndexBuilderOption func(*memoryIndex)

// WithRprimTypes restricts the drawable prim types the index accepts.
//
// Parameters:
//   - types: the supported rprim types
//
// Returns:
//   - IndexBuilderOption: a function that applies the rprim type option to an index
func WithRprimTypes(types ...PrimType) IndexBuilderOption {
	return func(m *memoryIndex) {
		m.rprimTypes = make(map[PrimType]bool, len(types))
		for _, t := range types {
			m.rprimTypes[t] = true
		}
	}
}

// WithSprimTypes restricts the state prim types the index accepts.
// Omitting PrimTypeMaterial models a renderer without material support.
//
// Parameters:
//   - types: the supported sprim types
//
// Returns:
//   - IndexBuilderOption: a function that applies the sprim type option to an index
func WithSprimTypes(types ...PrimType) IndexBuilderOption {
	return func(m *memoryIndex) {
		m.sprimTypes = make(map[PrimType]bool, len(types))
		for _, t := range types {
			m.sprimTypes[t] = true
		}
	}
}
