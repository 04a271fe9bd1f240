package dtnode

import "bytes"

// Property is an opaque named byte buffer attached to a Node. Ordering
// within a node's property list is preserved for enumeration but carries no
// semantics (spec.md §3).
type Property struct {
	Name  string
	Value []byte

	// Dynamic marks a property allocated by the overlay engine itself
	// (e.g. the symbol-path fixup, overlay.FixupSymbolProperty), as opposed to one
	// that came verbatim from a decoded blob.
	Dynamic bool
}

// Length returns len(Value), named to match spec.md's {name, value, length}
// triple.
func (p *Property) Length() int { return len(p.Value) }

// IsPseudo reports whether name is one of the pseudo-properties filtered
// during overlay merging (spec.md §3): "name", "phandle", "linux,phandle".
func IsPseudo(name string) bool {
	switch name {
	case "name", "phandle", "linux,phandle":
		return true
	default:
		return false
	}
}

// Clone returns a deep copy of p, optionally flagged Dynamic.
func (p *Property) Clone(dynamic bool) *Property {
	v := make([]byte, len(p.Value))
	copy(v, p.Value)
	return &Property{Name: p.Name, Value: v, Dynamic: dynamic}
}

// Property looks up a property by name on n, returning nil if absent.
func (n *Node) Property(name string) *Property {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.props {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Properties returns a snapshot slice of n's properties, in order.
func (n *Node) Properties() []*Property {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Property, len(n.props))
	copy(out, n.props)
	return out
}

// AddProperty appends p to n's property list. It does not check for an
// existing property of the same name; callers that need replace semantics
// should use UpdateProperty.
func (n *Node) AddProperty(p *Property) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.props = append(n.props, p)
}

// UpdateProperty replaces the value of the existing property named p.Name,
// or appends p if no such property exists. It returns the property that was
// replaced, or nil if none was.
func (n *Node) UpdateProperty(p *Property) *Property {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, existing := range n.props {
		if existing.Name == p.Name {
			n.props[i] = p
			return existing
		}
	}
	n.props = append(n.props, p)
	return nil
}

// RemoveProperty removes the named property, returning it, or nil if it was
// not present.
func (n *Node) RemoveProperty(name string) *Property {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, p := range n.props {
		if p.Name == name {
			n.props = append(n.props[:i:i], n.props[i+1:]...)
			return p
		}
	}
	return nil
}

// PropertyEqual reports whether two properties carry the same name and
// byte-identical value.
func PropertyEqual(a, b *Property) bool {
	return a.Name == b.Name && bytes.Equal(a.Value, b.Value)
}
