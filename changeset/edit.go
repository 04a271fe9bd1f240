// Package changeset implements the primitive edit log and the external
// primitive changeset engine named in spec.md §1/§3/§6: a small ordered log
// of tagged tree edits with atomic apply and failure-driven revert.
//
// The shape is grounded on vroot/overlay/copy_on_write.go's copyOnWrite:
// a recursive "promote, then act, unwind on failure" operation, generalized
// here from copying file bytes between filesystem layers to attaching
// nodes/properties between a synthesized overlay subtree and the live tree.
package changeset

import "github.com/ngicks/dtoverlay/dtnode"

// Kind tags the five primitive edit variants of spec.md §3.
type Kind int

const (
	AttachNode Kind = iota
	DetachNode
	AddProperty
	UpdateProperty
	RemoveProperty
)

func (k Kind) String() string {
	switch k {
	case AttachNode:
		return "ATTACH_NODE"
	case DetachNode:
		return "DETACH_NODE"
	case AddProperty:
		return "ADD_PROPERTY"
	case UpdateProperty:
		return "UPDATE_PROPERTY"
	case RemoveProperty:
		return "REMOVE_PROPERTY"
	default:
		return "UNKNOWN"
	}
}

// Edit is one primitive tree mutation. For AttachNode/DetachNode, Node is
// the node being (de)attached and Parent is the node it hangs off. For the
// property edits, Node is the owning node and Property carries the new
// value (ignored for RemoveProperty beyond its Name).
type Edit struct {
	Kind     Kind
	Node     *dtnode.Node
	Parent   *dtnode.Node
	Property *dtnode.Property

	// prev captures, at Apply time, the state an eventual Revert must
	// restore (the prior property value for UpdateProperty/RemoveProperty).
	// It is engine-internal bookkeeping, not part of the edit's identity.
	prev *dtnode.Property
}

// NodePath returns the full path of the node the edit targets, used by the
// duplicate-edit checker (spec.md §4.4) and the topmost policy (§4.6). For
// an AttachNode edit whose Node has not been attached yet (the usual case
// while the changeset builder is still running), the path is computed from
// Parent + the node's own basename instead of walking Node's own parent
// pointer.
func (e *Edit) NodePath() string {
	if e.Node.Parent() != nil {
		return e.Node.FullPath()
	}
	if e.Parent != nil {
		base := e.Parent.FullPath()
		if base == "/" {
			return "/" + e.Node.Basename()
		}
		return base + "/" + e.Node.Basename()
	}
	return e.Node.Basename()
}

// PropertyName returns the property name an edit targets, or "" for
// node-only edits.
func (e *Edit) PropertyName() string {
	if e.Property == nil {
		return ""
	}
	return e.Property.Name
}

// Log is an ordered list of primitive edits, in build order (spec.md §5:
// "edits within one changeset are applied in build order").
type Log []*Edit
