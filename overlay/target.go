package overlay

import (
	"encoding/binary"
	"strings"

	"github.com/ngicks/dtoverlay/dtnode"
)

// Fragment pairs an overlay subtree with the live node it grafts onto
// (spec.md §3).
type Fragment struct {
	Overlay *dtnode.Node
	Target  *dtnode.Node
}

// ResolveTarget implements the target resolver (C1, spec.md §4.1): given a
// fragment metadata node, locate its live-tree attachment point either by
// phandle ("target") or by path ("target-path"). base is the live node a
// relative target-path is resolved against; per spec.md §4.1/§9 a
// target-path is treated as absolute when base is nil.
//
// The returned node is retained (spec.md §3: "returns a retained handle").
func ResolveTarget(meta *dtnode.Node, live *dtnode.Tree, base *dtnode.Node) (*dtnode.Node, error) {
	if p := meta.Property("target"); p != nil {
		if len(p.Value) != 4 {
			return nil, invalid("resolve-target", errBadTargetPhandle)
		}
		ph := binary.BigEndian.Uint32(p.Value)
		n, ok := live.NodeByPhandle(ph)
		if !ok {
			return nil, invalid("resolve-target", errPhandleNotFound)
		}
		return n.Retain(), nil
	}

	if p := meta.Property("target-path"); p != nil {
		path := strings.TrimRight(string(p.Value), "\x00")
		if base != nil {
			path = joinPath(base.FullPath(), path)
		}
		n, ok := live.NodeByPath(path)
		if !ok {
			return nil, invalid("resolve-target", errTargetPathNotFound)
		}
		return n.Retain(), nil
	}

	return nil, invalid("resolve-target", errNoTargetProperty)
}

func joinPath(base, rel string) string {
	base = strings.TrimRight(base, "/")
	rel = strings.TrimLeft(rel, "/")
	if base == "" {
		return "/" + rel
	}
	return base + "/" + rel
}
