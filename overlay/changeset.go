package overlay

import (
	"github.com/ngicks/dtoverlay/changeset"
	"github.com/ngicks/dtoverlay/dtnode"
)

// NotifyState is a changeset's position in the apply/remove state machine
// (spec.md §3).
type NotifyState int

const (
	Init NotifyState = iota
	PreApply
	PostApply
	PreRemove
	PostRemove
)

func (s NotifyState) String() string {
	switch s {
	case Init:
		return "INIT"
	case PreApply:
		return "PRE_APPLY"
	case PostApply:
		return "POST_APPLY"
	case PreRemove:
		return "PRE_REMOVE"
	case PostRemove:
		return "POST_REMOVE"
	default:
		return "UNKNOWN"
	}
}

// Changeset is a recorded overlay changeset (spec.md §3): the fragments it
// grafted, the primitive edit log that did the grafting, and the lifecycle
// state it is currently in.
type Changeset struct {
	ID          int
	Fragments   []Fragment
	HasSymbols  bool
	Edits       changeset.Log
	State       NotifyState
	RawBlob     []byte
	OverlayRoot *dtnode.Node
}

// touchesNode reports whether any edit in the changeset touches or is an
// ancestor/descendant of n (spec.md §4.6's overlap test, reused by the
// registry's topmost policy).
func (c *Changeset) touchesNode(n *dtnode.Node) bool {
	for _, e := range c.Edits {
		if e.Node.Overlaps(n) {
			return true
		}
	}
	return false
}
