// Package dtnode implements the live/overlay devicetree data model: Node,
// Property, phandles and the flags that distinguish base-tree nodes from
// overlay-synthesized ones.
//
// The node tree itself is the "external" live-tree data structure named in
// spec.md §1 (node allocation, property storage, path lookup) — it is
// implemented here, rather than stubbed, because the overlay engine has
// nothing to drive apply/remove against otherwise. Ownership follows
// vroot.Fs's interface-first shape: a Node never owns its parent (parent is
// a plain pointer, never the other direction of the child-list slice), so
// there is no owning cycle to break.
package dtnode

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Flag is a bitmask of boolean properties a Node carries.
type Flag uint32

const (
	// FlagDynamic marks a node whose memory is heap-owned by this process
	// rather than mapped in from a static source blob.
	FlagDynamic Flag = 1 << iota
	// FlagDetached marks a node that is not linked under the tree root.
	FlagDetached
	// FlagOverlay marks a node created by an overlay apply, as opposed to
	// one that existed in the base tree already.
	FlagOverlay
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// Node is a hierarchical element of a devicetree: a basename, an ordered
// property list, an ordered child list, an optional phandle and a set of
// Flag bits. Node is not safe for concurrent use without external
// synchronization (the overlay engine provides that via its own mutexes,
// per spec.md §5).
type Node struct {
	mu sync.Mutex

	basename string
	parent   *Node
	children []*Node

	props []*Property

	phandle    uint32
	hasPhandle bool

	flags Flag

	refcount int32
}

// New allocates a detached node with the given basename. AttachChild clears
// FlagDetached when the node is grafted under a parent; a node used as a
// tree root has to have it cleared by the caller.
func New(basename string) *Node {
	return &Node{basename: basename, flags: FlagDetached}
}

// Basename returns the node's own name component, e.g. "foo@0".
func (n *Node) Basename() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.basename
}

// Parent returns the non-owning parent reference, or nil at the root.
func (n *Node) Parent() *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.parent
}

// Flags returns the current flag bitmask.
func (n *Node) Flags() Flag {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.flags
}

// SetFlag ORs bit into the node's flags.
func (n *Node) SetFlag(bit Flag) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.flags |= bit
}

// ClearFlag clears bit from the node's flags.
func (n *Node) ClearFlag(bit Flag) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.flags &^= bit
}

// Phandle returns the node's phandle and whether it has one.
func (n *Node) Phandle() (uint32, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.phandle, n.hasPhandle
}

// SetPhandle assigns a phandle to the node.
func (n *Node) SetPhandle(p uint32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.phandle = p
	n.hasPhandle = true
}

// Retain increments the node's reference count and returns the node, so
// callers can chain `h := n.Retain()`.
func (n *Node) Retain() *Node {
	atomic.AddInt32(&n.refcount, 1)
	return n
}

// Release decrements the node's reference count.
func (n *Node) Release() {
	atomic.AddInt32(&n.refcount, -1)
}

// RefCount returns the current reference count.
func (n *Node) RefCount() int32 {
	return atomic.LoadInt32(&n.refcount)
}

// Children returns a snapshot slice of the node's children, in order.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// AttachChild appends child to n's child list and sets child's parent to n,
// clearing FlagDetached. It does not check for name collisions; callers
// (changeset.Apply, the changeset builder) are responsible for that.
func (n *Node) AttachChild(child *Node) {
	n.mu.Lock()
	child.mu.Lock()
	n.children = append(n.children, child)
	child.parent = n
	child.flags &^= FlagDetached
	child.mu.Unlock()
	n.mu.Unlock()
}

// DetachChild removes child from n's child list, if present, and marks it
// FlagDetached. The child's parent pointer is left intact so DetachChild can
// be reversed without re-resolving the original parent (needed by
// changeset revert).
func (n *Node) DetachChild(child *Node) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i:i], n.children[i+1:]...)
			child.mu.Lock()
			child.flags |= FlagDetached
			child.mu.Unlock()
			return true
		}
	}
	return false
}

// ChildByBasename searches n's children for one whose basename matches
// name. Per spec.md §4.3, the candidate's own basename is compared after
// stripping any leading path segments, so a child whose stored name is a
// full Open-Firmware path ("/soc/bus/dev@0") still matches against the
// plain FDT-style basename ("dev@0").
func (n *Node) ChildByBasename(name string) (*Node, bool) {
	want := lastSegment(name)
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range n.children {
		if lastSegment(c.basename) == want {
			return c, true
		}
	}
	return nil, false
}

func lastSegment(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// FullPath reconstructs the absolute path from the root down to n.
func (n *Node) FullPath() string {
	var segs []string
	for cur := n; cur != nil; cur = cur.Parent() {
		if cur.Parent() == nil {
			break
		}
		segs = append(segs, cur.Basename())
	}
	if len(segs) == 0 {
		return "/"
	}
	reverse(segs)
	return "/" + strings.Join(segs, "/")
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// IsAncestorOf reports whether n is a (strict or non-strict) ancestor of
// other, walking parent pointers. Used by the topmost policy (C6), which
// spec.md §4.6 requires to be computed by live-tree traversal rather than
// path-string prefix comparison.
func (n *Node) IsAncestorOf(other *Node) bool {
	for cur := other; cur != nil; cur = cur.Parent() {
		if cur == n {
			return true
		}
	}
	return false
}

// Overlaps reports whether n and other are the same node or one is an
// ancestor of the other.
func (n *Node) Overlaps(other *Node) bool {
	return n == other || n.IsAncestorOf(other) || other.IsAncestorOf(n)
}
