package overlay

import (
	"errors"
	"testing"

	"github.com/ngicks/dtoverlay/dtnode"
	"gotest.tools/v3/assert"
)

// buildFixupScenario returns an overlayRoot/fragments pair shaped like a
// decoded overlay blob: one fragment@0 whose __overlay__ child is targeted
// at /soc, mirroring the layout FixupSymbolProperty expects to walk.
func buildFixupScenario() (overlayRoot *dtnode.Node, fragments []Fragment, target *dtnode.Node) {
	live, soc, _ := newLiveTree()
	_ = live

	overlayRoot = dtnode.New("")
	overlayRoot.ClearFlag(dtnode.FlagDetached)
	frag0 := dtnode.New("fragment@0")
	overlayRoot.AttachChild(frag0)
	ovl := dtnode.New("__overlay__")
	frag0.AttachChild(ovl)

	fragments = []Fragment{{Overlay: ovl, Target: soc}}
	return overlayRoot, fragments, soc
}

func TestFixupSymbolPropertyRewritesPath(t *testing.T) {
	overlayRoot, fragments, target := buildFixupScenario()
	prop := &dtnode.Property{Name: "label", Value: []byte("/fragment@0/__overlay__/dev@1\x00")}

	got, err := FixupSymbolProperty(prop, overlayRoot, fragments)
	assert.NilError(t, err)
	assert.Assert(t, got.Dynamic)
	assert.Equal(t, string(got.Value), target.FullPath()+"/dev@1\x00")
}

func TestFixupSymbolPropertyNoTail(t *testing.T) {
	overlayRoot, fragments, target := buildFixupScenario()
	prop := &dtnode.Property{Name: "label", Value: []byte("/fragment@0/__overlay__\x00")}

	got, err := FixupSymbolProperty(prop, overlayRoot, fragments)
	assert.NilError(t, err)
	assert.Equal(t, string(got.Value), target.FullPath()+"\x00")
}

func TestFixupSymbolPropertyUnknownFragment(t *testing.T) {
	overlayRoot, fragments, _ := buildFixupScenario()
	prop := &dtnode.Property{Name: "label", Value: []byte("/fragment@9/__overlay__/dev@1\x00")}

	_, err := FixupSymbolProperty(prop, overlayRoot, fragments)
	assert.Assert(t, errors.Is(err, errSymbolFixupFailed))
}

func TestFixupSymbolPropertyMalformedPath(t *testing.T) {
	overlayRoot, fragments, _ := buildFixupScenario()
	prop := &dtnode.Property{Name: "label", Value: []byte("justonesegment\x00")}

	_, err := FixupSymbolProperty(prop, overlayRoot, fragments)
	assert.Assert(t, errors.Is(err, errSymbolFixupFailed))
}
