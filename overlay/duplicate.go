package overlay

import "github.com/ngicks/dtoverlay/changeset"

// CheckDuplicates implements the duplicate-edit checker (C4, spec.md
// §4.4): an O(n²) pairwise scan over the edit log (n is small in
// practice — one overlay's worth of fragments). It enforces invariant 2:
// no two ATTACH/DETACH edits target the same node path, and no two
// property edits target the same (node path, property name) pair.
func CheckDuplicates(log changeset.Log) error {
	for i := 0; i < len(log); i++ {
		for j := i + 1; j < len(log); j++ {
			a, b := log[i], log[j]
			if isNodeEdit(a.Kind) && isNodeEdit(b.Kind) && a.NodePath() == b.NodePath() {
				return invalid("check-duplicates", errDuplicateNodeEdit)
			}
			if isPropertyEdit(a.Kind) && isPropertyEdit(b.Kind) &&
				a.NodePath() == b.NodePath() && a.PropertyName() == b.PropertyName() {
				return invalid("check-duplicates", errDuplicatePropEdit)
			}
		}
	}
	return nil
}

func isNodeEdit(k changeset.Kind) bool {
	return k == changeset.AttachNode || k == changeset.DetachNode
}

func isPropertyEdit(k changeset.Kind) bool {
	return k == changeset.AddProperty || k == changeset.UpdateProperty || k == changeset.RemoveProperty
}
