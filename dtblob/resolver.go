package dtblob

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/ngicks/dtoverlay/dtnode"
)

// placeholderPhandle is the conventional "not yet assigned" phandle value a
// compiler emits for a node it knows needs one but cannot number until link
// time (dtc's own convention, carried here for compatibility with real FDT
// overlay blobs).
const placeholderPhandle = 0xffffffff

// ResolvePhandles performs the phandle resolution step spec.md §4.5 step 4
// describes as an external collaborator: it is run over a freshly decoded
// overlay tree, before the changeset builder, so that every reference the
// overlay makes to another node — whether newly introduced by the overlay
// itself or by label into the live tree's "/__symbols__" — is a concrete
// uint32 by the time the builder walks properties.
//
// Two passes, mirroring the two distinct reference classes a real FDT
// overlay carries:
//
//  1. Local allocation: any node in the overlay carrying a placeholder
//     "phandle"/"linux,phandle" property is assigned a fresh phandle from
//     the live tree's allocator, so it can be referenced elsewhere without
//     colliding with anything already live.
//  2. External fixups: a "__fixups__" child of the overlay root maps a
//     live-tree symbol name to one or more "<path>:<property>:<offset>"
//     locations inside the overlay that must be patched with the phandle
//     of the live node that symbol resolves to. The node is consumed (not
//     merged into the live tree by the changeset builder).
func ResolvePhandles(overlayRoot *dtnode.Node, live *dtnode.Tree) error {
	assignLocalPhandles(overlayRoot, live)
	return applyExternalFixups(overlayRoot, live)
}

func assignLocalPhandles(n *dtnode.Node, live *dtnode.Tree) {
	for _, name := range []string{"phandle", "linux,phandle"} {
		if p := n.Property(name); p != nil && len(p.Value) == 4 && binary.BigEndian.Uint32(p.Value) == placeholderPhandle {
			ph := live.AllocatePhandle()
			buf := make([]byte, 4)
			binary.BigEndian.PutUint32(buf, ph)
			n.UpdateProperty(&dtnode.Property{Name: name, Value: buf})
			n.SetPhandle(ph)
			live.RegisterPhandle(ph, n)
		}
	}
	for _, c := range n.Children() {
		assignLocalPhandles(c, live)
	}
}

func applyExternalFixups(overlayRoot *dtnode.Node, live *dtnode.Tree) error {
	fixups, ok := overlayRoot.ChildByBasename("__fixups__")
	if !ok {
		return nil
	}
	symbols, hasSymbols := live.Symbols()

	for _, entryProp := range fixups.Properties() {
		symbol := entryProp.Name
		if !hasSymbols {
			return fmt.Errorf("dtblob: fixup %q: live tree has no /__symbols__", symbol)
		}
		symProp := symbols.Property(symbol)
		if symProp == nil {
			return fmt.Errorf("dtblob: fixup %q: symbol not found in /__symbols__", symbol)
		}
		targetPath := strings.TrimRight(string(symProp.Value), "\x00")
		target, ok := live.NodeByPath(targetPath)
		if !ok {
			return fmt.Errorf("dtblob: fixup %q: target path %q not found", symbol, targetPath)
		}
		ph, hasPh := target.Phandle()
		if !hasPh {
			ph = live.AllocatePhandle()
			target.SetPhandle(ph)
			live.RegisterPhandle(ph, target)
			buf := make([]byte, 4)
			binary.BigEndian.PutUint32(buf, ph)
			target.UpdateProperty(&dtnode.Property{Name: "phandle", Value: buf})
		}

		for _, loc := range strings.Split(strings.TrimRight(string(entryProp.Value), "\x00"), "\x00") {
			if loc == "" {
				continue
			}
			if err := patchLocation(overlayRoot, loc, ph); err != nil {
				return fmt.Errorf("dtblob: fixup %q: %w", symbol, err)
			}
		}
	}

	overlayRoot.DetachChild(fixups)
	return nil
}

func patchLocation(overlayRoot *dtnode.Node, loc string, phandle uint32) error {
	parts := strings.Split(loc, ":")
	if len(parts) != 3 {
		return fmt.Errorf("malformed fixup location %q", loc)
	}
	path, propName, offStr := parts[0], parts[1], parts[2]
	off, err := strconv.Atoi(offStr)
	if err != nil {
		return fmt.Errorf("malformed fixup offset in %q: %w", loc, err)
	}

	target := overlayRoot
	if trimmed := strings.Trim(path, "/"); trimmed != "" {
		for _, seg := range strings.Split(trimmed, "/") {
			child, ok := target.ChildByBasename(seg)
			if !ok {
				return fmt.Errorf("path %q not found in overlay", path)
			}
			target = child
		}
	}
	prop := target.Property(propName)
	if prop == nil {
		return fmt.Errorf("property %q not found at %q", propName, path)
	}
	if off < 0 || off+4 > len(prop.Value) {
		return fmt.Errorf("offset %d out of range for property %q (len %d)", off, propName, len(prop.Value))
	}
	binary.BigEndian.PutUint32(prop.Value[off:off+4], phandle)
	return nil
}
