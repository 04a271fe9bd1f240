package overlay

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ngicks/dtoverlay/dtnode"
	"gotest.tools/v3/assert"
)

func newLiveTree() (*dtnode.Tree, *dtnode.Node, *dtnode.Node) {
	root := dtnode.New("")
	root.ClearFlag(dtnode.FlagDetached)
	soc := dtnode.New("soc")
	root.AttachChild(soc)
	dev := dtnode.New("dev@0")
	soc.AttachChild(dev)
	return dtnode.NewTree(root), soc, dev
}

func TestResolveTargetByPhandle(t *testing.T) {
	live, _, dev := newLiveTree()
	dev.SetPhandle(7)
	live.RegisterPhandle(7, dev)

	val := make([]byte, 4)
	binary.BigEndian.PutUint32(val, 7)
	meta := dtnode.New("fragment@0")
	meta.AddProperty(&dtnode.Property{Name: "target", Value: val})

	got, err := ResolveTarget(meta, live, nil)
	assert.NilError(t, err)
	assert.Equal(t, got, dev)
}

func TestResolveTargetByPathAbsolute(t *testing.T) {
	live, soc, _ := newLiveTree()
	meta := dtnode.New("fragment@0")
	meta.AddProperty(&dtnode.Property{Name: "target-path", Value: []byte("/soc\x00")})

	got, err := ResolveTarget(meta, live, nil)
	assert.NilError(t, err)
	assert.Equal(t, got, soc)
}

func TestResolveTargetByPathRelativeToBase(t *testing.T) {
	live, _, dev := newLiveTree()
	base, ok := live.NodeByPath("/soc")
	assert.Assert(t, ok)

	meta := dtnode.New("fragment@0")
	meta.AddProperty(&dtnode.Property{Name: "target-path", Value: []byte("dev@0\x00")})

	got, err := ResolveTarget(meta, live, base)
	assert.NilError(t, err)
	assert.Equal(t, got, dev)
}

func TestResolveTargetMissingProperty(t *testing.T) {
	live, _, _ := newLiveTree()
	meta := dtnode.New("fragment@0")

	_, err := ResolveTarget(meta, live, nil)
	assert.Assert(t, errors.Is(err, ErrInvalid))
	assert.Assert(t, errors.Is(err, errNoTargetProperty))
}

func TestResolveTargetUnknownPhandle(t *testing.T) {
	live, _, _ := newLiveTree()
	val := make([]byte, 4)
	binary.BigEndian.PutUint32(val, 99)
	meta := dtnode.New("fragment@0")
	meta.AddProperty(&dtnode.Property{Name: "target", Value: val})

	_, err := ResolveTarget(meta, live, nil)
	assert.Assert(t, errors.Is(err, errPhandleNotFound))
}

func TestResolveTargetBadPhandleLength(t *testing.T) {
	live, _, _ := newLiveTree()
	meta := dtnode.New("fragment@0")
	meta.AddProperty(&dtnode.Property{Name: "target", Value: []byte{1, 2}})

	_, err := ResolveTarget(meta, live, nil)
	assert.Assert(t, errors.Is(err, errBadTargetPhandle))
}
