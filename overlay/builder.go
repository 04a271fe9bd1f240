package overlay

import (
	stdlog "log"

	"github.com/ngicks/dtoverlay/changeset"
	"github.com/ngicks/dtoverlay/dtnode"
)

// cursor tracks the changeset builder's position as it walks an overlay
// fragment in lockstep with the live tree (spec.md §4.3).
type cursor struct {
	node       *dtnode.Node
	inLiveTree bool
}

// BuildFragment walks one non-symbols fragment (C3, spec.md §4.3),
// appending primitive edits to log. warn is invoked whenever a property is
// added to or updated on a live-tree node that does not carry FlagOverlay (spec.md
// invariant 4); it is normally Manager.warnUnflaggedTarget.
func BuildFragment(f Fragment, log *changeset.Log, warn func(*dtnode.Node)) error {
	return buildNode(f.Overlay, cursor{node: f.Target, inLiveTree: true}, log, warn)
}

func buildNode(overlayNode *dtnode.Node, cur cursor, log *changeset.Log, warn func(*dtnode.Node)) error {
	if err := buildProperties(overlayNode, cur, log, warn); err != nil {
		return err
	}
	for _, child := range overlayNode.Children() {
		if err := buildChild(child, cur, log, warn); err != nil {
			return err
		}
	}
	return nil
}

func buildProperties(overlayNode *dtnode.Node, cur cursor, log *changeset.Log, warn func(*dtnode.Node)) error {
	for _, p := range overlayNode.Properties() {
		if cur.inLiveTree && dtnode.IsPseudo(p.Name) {
			continue
		}

		if !cur.inLiveTree {
			*log = append(*log, &changeset.Edit{Kind: changeset.AddProperty, Node: cur.node, Property: p.Clone(false)})
			continue
		}

		existing := cur.node.Property(p.Name)
		if existing == nil {
			*log = append(*log, &changeset.Edit{Kind: changeset.AddProperty, Node: cur.node, Property: p.Clone(false)})
			if !cur.node.Flags().Has(dtnode.FlagOverlay) && warn != nil {
				warn(cur.node)
			}
			continue
		}

		if p.Name == "#address-cells" || p.Name == "#size-cells" {
			if !dtnode.PropertyEqual(existing, p) {
				return invalid("build-fragment", errCellsMismatch)
			}
			continue
		}

		*log = append(*log, &changeset.Edit{Kind: changeset.UpdateProperty, Node: cur.node, Property: p.Clone(false)})
		if !cur.node.Flags().Has(dtnode.FlagOverlay) && warn != nil {
			warn(cur.node)
		}
	}
	return nil
}

func buildChild(child *dtnode.Node, cur cursor, log *changeset.Log, warn func(*dtnode.Node)) error {
	if cur.inLiveTree {
		if found, ok := cur.node.ChildByBasename(child.Basename()); ok {
			_, foundHasPh := found.Phandle()
			_, childHasPh := child.Phandle()
			if foundHasPh && childHasPh {
				return invalid("build-fragment", errPhandleCollision)
			}
			return buildNode(child, cursor{node: found, inLiveTree: true}, log, warn)
		}
	}

	fresh := synthesizeNode(child)
	*log = append(*log, &changeset.Edit{Kind: changeset.AttachNode, Node: fresh, Parent: cur.node})
	return buildNode(child, cursor{node: fresh, inLiveTree: false}, log, warn)
}

func synthesizeNode(overlayChild *dtnode.Node) *dtnode.Node {
	n := dtnode.New(overlayChild.Basename())
	n.SetFlag(dtnode.FlagDynamic | dtnode.FlagOverlay)
	if nameProp := overlayChild.Property("name"); nameProp != nil {
		n.AddProperty(nameProp.Clone(false))
	} else {
		n.AddProperty(&dtnode.Property{Name: "name", Value: []byte("<NULL>\x00")})
	}
	if ph, ok := overlayChild.Phandle(); ok {
		n.SetPhandle(ph)
	}
	return n
}

// BuildSymbolsFragment implements the symbols-variant of C3 (spec.md
// §4.3/§4.5 step 7): every property of the source "__symbols__" node is
// rewritten via FixupSymbolProperty (C2) and emitted as an ADD_PROPERTY
// edit against the live "/__symbols__" node. Updating an existing symbol is
// forbidden outright (spec.md §4.3: "symbols updates forbidden").
// A property whose path cannot be rewritten is dropped with a logged
// warning, per spec.md §4.2's "return failure and drop the property" —
// that failure does not abort the rest of the symbols fragment.
func BuildSymbolsFragment(f Fragment, overlayRoot *dtnode.Node, fragments []Fragment, log *changeset.Log, logger *stdlog.Logger) error {
	for _, p := range f.Overlay.Properties() {
		if f.Target.Property(p.Name) != nil {
			return invalid("build-symbols-fragment", errSymbolsUpdate)
		}
		rewritten, err := FixupSymbolProperty(p, overlayRoot, fragments)
		if err != nil {
			if logger != nil {
				logger.Printf("overlay: dropping symbol %q: %v", p.Name, err)
			}
			continue
		}
		*log = append(*log, &changeset.Edit{Kind: changeset.AddProperty, Node: f.Target, Property: rewritten})
	}
	return nil
}
