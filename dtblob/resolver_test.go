package dtblob

import (
	"encoding/binary"
	"testing"

	"github.com/ngicks/dtoverlay/dtnode"
	"gotest.tools/v3/assert"
)

func TestAssignLocalPhandles(t *testing.T) {
	live := dtnode.NewTree(dtnode.New(""))
	live.Root().ClearFlag(dtnode.FlagDetached)

	overlayRoot := dtnode.New("")
	dev := dtnode.New("dev@0")
	overlayRoot.AttachChild(dev)
	placeholder := make([]byte, 4)
	binary.BigEndian.PutUint32(placeholder, placeholderPhandle)
	dev.AddProperty(&dtnode.Property{Name: "phandle", Value: placeholder})

	assert.NilError(t, ResolvePhandles(overlayRoot, live))

	ph, ok := dev.Phandle()
	assert.Assert(t, ok)
	assert.Assert(t, ph != placeholderPhandle)
	assert.DeepEqual(t, dev.Property("phandle").Value, mustBE(ph))
}

func TestExternalFixups(t *testing.T) {
	liveRoot := dtnode.New("")
	live := dtnode.NewTree(liveRoot)
	liveRoot.ClearFlag(dtnode.FlagDetached)
	bus := dtnode.New("bus")
	liveRoot.AttachChild(bus)
	symbols := dtnode.New("__symbols__")
	liveRoot.AttachChild(symbols)
	symbols.AddProperty(&dtnode.Property{Name: "mybus", Value: []byte("/bus\x00")})

	overlayRoot := dtnode.New("")
	dev := dtnode.New("dev@0")
	overlayRoot.AttachChild(dev)
	ref := &dtnode.Property{Name: "phy-handle", Value: make([]byte, 4)}
	dev.AddProperty(ref)

	fixups := dtnode.New("__fixups__")
	overlayRoot.AttachChild(fixups)
	fixups.AddProperty(&dtnode.Property{
		Name:  "mybus",
		Value: []byte("dev@0:phy-handle:0\x00"),
	})

	assert.NilError(t, ResolvePhandles(overlayRoot, live))

	ph, ok := bus.Phandle()
	assert.Assert(t, ok)
	assert.DeepEqual(t, dev.Property("phy-handle").Value, mustBE(ph))

	_, stillThere := overlayRoot.ChildByBasename("__fixups__")
	assert.Assert(t, !stillThere)
}

func mustBE(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
