package common

import "strings"

// Path is a renderer-scene-unique hierarchical name identifying a prim.
// Prim paths use "/" separators; property paths append ".name" to a prim path.
// The zero value is the empty path.
type Path string

const (
	// EmptyPath is the empty identity. The renderer treats it as "no prim" and, for
	// material bindings, as its built-in fallback material.
	EmptyPath Path = ""

	// AbsoluteRoot is the root of every absolute identity path.
	AbsoluteRoot Path = "/"
)

// IsEmpty reports whether p is the empty path.
func (p Path) IsEmpty() bool {
	return p == EmptyPath
}

// String returns the textual form of the path.
func (p Path) String() string {
	return string(p)
}

// AppendChild returns the prim path naming the child called name below p.
// The name is sanitized so the result is always a valid prim path.
//
// Parameters:
//   - name: the child element name
//
// Returns:
//   - Path: the child path
func (p Path) AppendChild(name string) Path {
	name = SanitizeName(name)
	if p == EmptyPath || p == AbsoluteRoot {
		return Path("/" + name)
	}
	return Path(string(p.PrimPath()) + "/" + name)
}

// AppendProperty returns the property path naming the property called name on p.
//
// Parameters:
//   - name: the property name
//
// Returns:
//   - Path: the property path
func (p Path) AppendProperty(name string) Path {
	return Path(string(p.PrimPath()) + "." + SanitizeName(name))
}

// IsPropertyPath reports whether p names a property rather than a prim.
func (p Path) IsPropertyPath() bool {
	last := strings.LastIndexByte(string(p), '/')
	return strings.IndexByte(string(p)[last+1:], '.') >= 0
}

// PrimPath strips any property part from p.
func (p Path) PrimPath() Path {
	if !p.IsPropertyPath() {
		return p
	}
	last := strings.LastIndexByte(string(p), '/')
	dot := strings.IndexByte(string(p)[last+1:], '.')
	return p[:last+1+dot]
}

// Name returns the last element of the prim path, or the property name for
// property paths.
func (p Path) Name() string {
	if p.IsPropertyPath() {
		return string(p[strings.LastIndexByte(string(p), '.')+1:])
	}
	return string(p[strings.LastIndexByte(string(p), '/')+1:])
}

// HasPrefix reports whether p is prefix or lives below it.
//
// Parameters:
//   - prefix: the candidate ancestor path
//
// Returns:
//   - bool: true if p equals prefix or is a descendant of it
func (p Path) HasPrefix(prefix Path) bool {
	if prefix == AbsoluteRoot {
		return strings.HasPrefix(string(p), "/")
	}
	if p == prefix {
		return true
	}
	return strings.HasPrefix(string(p), string(prefix)+"/") || strings.HasPrefix(string(p), string(prefix)+".")
}

// PathFromHost derives an identity path from a host DAG path below root.
// Host paths use "|" separators ("|group1|pCube1|pCubeShape1"); namespace separators
// and any other characters that are illegal in prim names are replaced by "_".
// The result is deterministic so the same host location always maps to the same prim.
//
// Parameters:
//   - root: the delegate's root path for this kind of prim
//   - hostPath: the full host DAG path
//
// Returns:
//   - Path: the derived identity path, or EmptyPath if hostPath has no elements
func PathFromHost(root Path, hostPath string) Path {
	out := root
	found := false
	for _, elem := range strings.Split(hostPath, "|") {
		if elem == "" {
			continue
		}
		out = out.AppendChild(elem)
		found = true
	}
	if !found {
		return EmptyPath
	}
	return out
}

// SanitizeName replaces every character that is not valid in a prim name with "_".
// A leading digit is prefixed with "_".
//
// Parameters:
//   - name: the raw element name
//
// Returns:
//   - string: a valid prim element name
func SanitizeName(name string) string {
	if name == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(name) + 1)
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
