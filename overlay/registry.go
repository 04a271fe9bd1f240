package overlay

// registry is the ordered list of live overlay changesets plus the dense
// id→changeset map (spec.md §3 Registry, C6). List order is insertion
// order: oldest first, newest ("topmost") last. The ordered-list scans here
// — checking every changeset after a candidate for conflicts, and
// iterating tail-to-head for remove_all — are grounded on
// vroot/overlay/layers.go's Layers type, which does a newest-wins scan over
// a slice of layers (`slices.Backward(ll)`); here they are plain index
// loops.
type registry struct {
	list []*Changeset
	byID map[int]*Changeset
}

func newRegistry() *registry {
	return &registry{byID: make(map[int]*Changeset)}
}

func (r *registry) insert(c *Changeset) {
	r.list = append(r.list, c)
	r.byID[c.ID] = c
}

func (r *registry) remove(c *Changeset) {
	for i, other := range r.list {
		if other == c {
			r.list = append(r.list[:i:i], r.list[i+1:]...)
			break
		}
	}
	delete(r.byID, c.ID)
}

func (r *registry) byIDLookup(id int) (*Changeset, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// isTopmost implements the topmost policy (C6, spec.md §4.6): candidate is
// topmost-safe iff no changeset applied after it touched any node that
// candidate's own edits touch, where "touched" includes ancestor/descendant
// relationships computed by live-tree traversal (dtnode.Node.Overlaps), not
// by path-string comparison.
func (r *registry) isTopmost(candidate *Changeset) bool {
	idx := -1
	for i, c := range r.list {
		if c == candidate {
			idx = i
			break
		}
	}
	if idx < 0 {
		return true
	}
	for _, later := range r.list[idx+1:] {
		for _, e := range candidate.Edits {
			if later.touchesNode(e.Node) {
				return false
			}
		}
	}
	return true
}

// applied returns the ids of every recorded changeset, in apply order.
func (r *registry) applied() []int {
	ids := make([]int, len(r.list))
	for i, c := range r.list {
		ids[i] = c.ID
	}
	return ids
}

// tailToHead returns a snapshot of the registry in remove_all order
// (spec.md §4.5 remove_all: "iterate registry from tail to head").
func (r *registry) tailToHead() []*Changeset {
	out := make([]*Changeset, len(r.list))
	for i, c := range r.list {
		out[len(r.list)-1-i] = c
	}
	return out
}
