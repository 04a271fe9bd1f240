package dtnode

// Snapshot is a plain-struct projection of a Node subtree, detached from
// the mutex/refcount machinery Node itself carries. It exists so tests can
// compare two points in a live tree's lifetime (e.g. before apply and
// after apply+remove, the round-trip property of spec.md §8) with
// github.com/google/go-cmp/cmp.Diff, the way vroot/aferofs tests diff
// captured directory listings rather than the live filesystem handles
// themselves.
type Snapshot struct {
	Basename   string
	Properties []PropertySnapshot
	Children   []Snapshot
	Phandle    uint32
	HasPhandle bool
}

// PropertySnapshot is the comparable projection of a Property.
type PropertySnapshot struct {
	Name  string
	Value []byte
}

// Snap captures n and its descendants as a Snapshot. Flags and refcounts
// are intentionally omitted: the round-trip property cares about the
// shape and content callers observe (path, properties, children), not
// engine bookkeeping that never existed before the first apply.
func (n *Node) Snap() Snapshot {
	props := n.Properties()
	propSnaps := make([]PropertySnapshot, len(props))
	for i, p := range props {
		propSnaps[i] = PropertySnapshot{Name: p.Name, Value: p.Value}
	}

	children := n.Children()
	childSnaps := make([]Snapshot, len(children))
	for i, c := range children {
		childSnaps[i] = c.Snap()
	}

	ph, hasPh := n.Phandle()
	return Snapshot{
		Basename:   n.Basename(),
		Properties: propSnaps,
		Children:   childSnaps,
		Phandle:    ph,
		HasPhandle: hasPh,
	}
}
