// Package dtblob implements the flat-tree binary decoder and phandle
// resolver spec.md §1 names as external collaborators of the overlay
// engine. They are reimplemented here, rather than left as an interface
// stub, because fdt_apply (spec.md §6) needs a real byte-level entry
// point to drive.
//
// The decoder's shape — walk a sequential binary container with an
// io.ReaderAt-like cursor — is grounded on tarfs/headers.go's
// collectHeaders, generalized from tar's fixed 512-byte block headers to
// the FDT token stream. Unlike collectHeaders it needs no map or second
// pass: parent/child links are wired in the same pass from a stack of open
// nodes, driven by the token stream (FDT_BEGIN_NODE/FDT_END_NODE/
// FDT_PROP/FDT_NOP/FDT_END) of spec.md §6.
package dtblob

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ngicks/dtoverlay/dtnode"
)

const (
	magic = 0xd00dfeed

	tokenBeginNode = 0x00000001
	tokenEndNode   = 0x00000002
	tokenProp      = 0x00000003
	tokenNop       = 0x00000004
	tokenEnd       = 0x00000009
)

// ErrBadMagic is returned when the blob's header magic does not match the
// flat devicetree format.
var ErrBadMagic = errors.New("dtblob: bad magic")

// ErrTruncated is returned when the blob ends before a token/structure it
// announced is fully present.
var ErrTruncated = errors.New("dtblob: truncated blob")

// header is the fixed 10-word flat devicetree header (spec.md §6).
type header struct {
	totalSize      uint32
	offDtStruct    uint32
	offDtStrings   uint32
	offMemRsvmap   uint32
	version        uint32
	lastCompVer    uint32
	bootCPUIDPhys  uint32
	sizeDtStrings  uint32
	sizeDtStruct   uint32
}

func parseHeader(b []byte) (header, error) {
	if len(b) < 40 {
		return header{}, ErrTruncated
	}
	if binary.BigEndian.Uint32(b[0:4]) != magic {
		return header{}, ErrBadMagic
	}
	return header{
		totalSize:     binary.BigEndian.Uint32(b[4:8]),
		offDtStruct:   binary.BigEndian.Uint32(b[8:12]),
		offDtStrings:  binary.BigEndian.Uint32(b[12:16]),
		offMemRsvmap:  binary.BigEndian.Uint32(b[16:20]),
		version:       binary.BigEndian.Uint32(b[20:24]),
		lastCompVer:   binary.BigEndian.Uint32(b[24:28]),
		bootCPUIDPhys: binary.BigEndian.Uint32(b[28:32]),
		sizeDtStrings: binary.BigEndian.Uint32(b[32:36]),
		sizeDtStruct:  binary.BigEndian.Uint32(b[36:40]),
	}, nil
}

// cursor walks the struct block, tracking the current offset the way
// tarfs's countingReader tracks bytes consumed from the archive.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) u32() (uint32, error) {
	if c.off+4 > len(c.buf) {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint32(c.buf[c.off : c.off+4])
	c.off += 4
	return v, nil
}

func (c *cursor) cstring() (string, error) {
	start := c.off
	for c.off < len(c.buf) && c.buf[c.off] != 0 {
		c.off++
	}
	if c.off >= len(c.buf) {
		return "", ErrTruncated
	}
	s := string(c.buf[start:c.off])
	c.off++ // skip NUL
	c.off = align4(c.off)
	return s, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if c.off+n > len(c.buf) {
		return nil, ErrTruncated
	}
	out := make([]byte, n)
	copy(out, c.buf[c.off:c.off+n])
	c.off += n
	c.off = align4(c.off)
	return out, nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}

// Decode parses a flat devicetree binary blob into an unflattened tree
// rooted at a parentless *dtnode.Node with FlagDetached cleared, the way NewOverlay's caller hands
// vroot/overlay an already-mounted Layer: the caller of fdt_apply is
// expected to feed Decode's result straight into the phandle resolver and
// then the changeset builder.
func Decode(raw []byte) (*dtnode.Node, error) {
	hdr, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}
	if int(hdr.offDtStruct)+int(hdr.sizeDtStruct) > len(raw) {
		return nil, ErrTruncated
	}
	if int(hdr.offDtStrings)+int(hdr.sizeDtStrings) > len(raw) {
		return nil, ErrTruncated
	}
	strBlock := raw[hdr.offDtStrings : hdr.offDtStrings+hdr.sizeDtStrings]
	structBlock := raw[hdr.offDtStruct : hdr.offDtStruct+hdr.sizeDtStruct]

	c := &cursor{buf: structBlock}

	root := dtnode.New("")
	stack := []*dtnode.Node{root}

	sawBegin := false
	for {
		tok, err := c.u32()
		if err != nil {
			return nil, err
		}
		switch tok {
		case tokenNop:
			continue
		case tokenBeginNode:
			name, err := c.cstring()
			if err != nil {
				return nil, fmt.Errorf("dtblob: reading node name: %w", err)
			}
			// The blob's first node is its own root and is represented by root.
			n := root
			if sawBegin {
				n = dtnode.New(name)
				stack[len(stack)-1].AttachChild(n)
			}
			stack = append(stack, n)
			sawBegin = true
		case tokenEndNode:
			if len(stack) <= 1 {
				return nil, fmt.Errorf("dtblob: unbalanced FDT_END_NODE")
			}
			stack = stack[:len(stack)-1]
		case tokenProp:
			length, err := c.u32()
			if err != nil {
				return nil, err
			}
			nameOff, err := c.u32()
			if err != nil {
				return nil, err
			}
			name, err := cstrAt(strBlock, int(nameOff))
			if err != nil {
				return nil, err
			}
			value, err := c.bytes(int(length))
			if err != nil {
				return nil, fmt.Errorf("dtblob: reading property %q: %w", name, err)
			}
			cur := stack[len(stack)-1]
			p := &dtnode.Property{Name: name, Value: value}
			cur.AddProperty(p)
			if (name == "phandle" || name == "linux,phandle") && len(value) == 4 {
				cur.SetPhandle(binary.BigEndian.Uint32(value))
			}
		case tokenEnd:
			if !sawBegin {
				return nil, fmt.Errorf("dtblob: empty blob")
			}
			if len(stack) != 1 {
				return nil, fmt.Errorf("dtblob: FDT_END with unbalanced nodes")
			}
			root.ClearFlag(dtnode.FlagDetached)
			return root, nil
		default:
			return nil, fmt.Errorf("dtblob: unknown token 0x%x at offset %d", tok, c.off-4)
		}
	}
}

func cstrAt(block []byte, off int) (string, error) {
	if off < 0 || off >= len(block) {
		return "", ErrTruncated
	}
	end := off
	for end < len(block) && block[end] != 0 {
		end++
	}
	if end >= len(block) {
		return "", ErrTruncated
	}
	return string(block[off:end]), nil
}
