package overlay

import (
	"strings"

	"github.com/ngicks/dtoverlay/dtnode"
)

// FixupSymbolProperty implements the symbol-path fixup (C2, spec.md §4.2).
// prop's value is a path such as "/fragment@0/__overlay__/foo/bar" written
// relative to the overlay's own internal layout; FixupSymbolProperty
// rewrites it to "<target-path>/foo/bar", the path the referenced node will
// occupy once its owning fragment is grafted onto the live tree.
//
// The rewritten property is flagged Dynamic. If any step fails — malformed
// path, the fragment cannot be located among fragments, or the path is
// otherwise inconsistent — FixupSymbolProperty returns an error and the
// caller must drop the property rather than insert a bad one.
func FixupSymbolProperty(prop *dtnode.Property, overlayRoot *dtnode.Node, fragments []Fragment) (*dtnode.Property, error) {
	value := strings.TrimRight(string(prop.Value), "\x00")
	trimmed := strings.TrimLeft(value, "/")
	segs := strings.SplitN(trimmed, "/", 3)
	if len(segs) < 2 {
		return nil, invalid("fixup-symbol", errSymbolFixupFailed)
	}
	fragBasename, overlayBasename := segs[0], segs[1]
	if overlayBasename != "__overlay__" {
		return nil, invalid("fixup-symbol", errSymbolFixupFailed)
	}

	fragNode, ok := overlayRoot.ChildByBasename(fragBasename)
	if !ok {
		return nil, invalid("fixup-symbol", errSymbolFixupFailed)
	}
	overlayNode, ok := fragNode.ChildByBasename("__overlay__")
	if !ok {
		return nil, invalid("fixup-symbol", errSymbolFixupFailed)
	}

	var target *dtnode.Node
	for _, f := range fragments {
		if f.Overlay == overlayNode {
			target = f.Target
			break
		}
	}
	if target == nil {
		return nil, invalid("fixup-symbol", errSymbolFixupFailed)
	}

	tail := ""
	if len(segs) == 3 {
		tail = "/" + segs[2]
	}

	newValue := strings.TrimRight(target.FullPath(), "/") + tail

	out := make([]byte, 0, len(newValue)+1)
	out = append(out, newValue...)
	out = append(out, 0)
	return &dtnode.Property{Name: prop.Name, Value: out, Dynamic: true}, nil
}
