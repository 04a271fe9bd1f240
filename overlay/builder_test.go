package overlay

import (
	"testing"

	"github.com/ngicks/dtoverlay/changeset"
	"github.com/ngicks/dtoverlay/dtnode"
	"gotest.tools/v3/assert"
)

func TestBuildFragmentAddProperty(t *testing.T) {
	_, _, dev := newLiveTree()
	dev.SetFlag(dtnode.FlagOverlay)

	overlay := dtnode.New("__overlay__")
	overlay.AddProperty(&dtnode.Property{Name: "status", Value: []byte("okay\x00")})

	var log changeset.Log
	warned := false
	err := BuildFragment(Fragment{Overlay: overlay, Target: dev}, &log, func(*dtnode.Node) { warned = true })
	assert.NilError(t, err)
	assert.Equal(t, len(log), 1)
	assert.Equal(t, log[0].Kind, changeset.AddProperty)
	assert.Equal(t, log[0].Node, dev)
	assert.Assert(t, !warned)
}

func TestBuildFragmentWarnsOnUnflaggedTarget(t *testing.T) {
	_, _, dev := newLiveTree()

	overlay := dtnode.New("__overlay__")
	overlay.AddProperty(&dtnode.Property{Name: "status", Value: []byte("okay\x00")})

	var log changeset.Log
	warned := false
	err := BuildFragment(Fragment{Overlay: overlay, Target: dev}, &log, func(*dtnode.Node) { warned = true })
	assert.NilError(t, err)
	assert.Assert(t, warned)
}

func TestBuildFragmentUpdateExistingProperty(t *testing.T) {
	_, _, dev := newLiveTree()
	dev.AddProperty(&dtnode.Property{Name: "status", Value: []byte("disabled\x00")})

	overlay := dtnode.New("__overlay__")
	overlay.AddProperty(&dtnode.Property{Name: "status", Value: []byte("okay\x00")})

	var log changeset.Log
	warned := false
	err := BuildFragment(Fragment{Overlay: overlay, Target: dev}, &log, func(*dtnode.Node) { warned = true })
	assert.NilError(t, err)
	assert.Equal(t, len(log), 1)
	assert.Equal(t, log[0].Kind, changeset.UpdateProperty)
	assert.Assert(t, warned)
}

func TestBuildFragmentUpdateOnOverlayFlaggedTargetDoesNotWarn(t *testing.T) {
	_, _, dev := newLiveTree()
	dev.SetFlag(dtnode.FlagOverlay)
	dev.AddProperty(&dtnode.Property{Name: "status", Value: []byte("disabled\x00")})

	overlay := dtnode.New("__overlay__")
	overlay.AddProperty(&dtnode.Property{Name: "status", Value: []byte("okay\x00")})

	var log changeset.Log
	warned := false
	err := BuildFragment(Fragment{Overlay: overlay, Target: dev}, &log, func(*dtnode.Node) { warned = true })
	assert.NilError(t, err)
	assert.Equal(t, len(log), 1)
	assert.Assert(t, !warned)
}

func TestBuildFragmentCellsMismatchRejected(t *testing.T) {
	_, _, dev := newLiveTree()
	dev.AddProperty(&dtnode.Property{Name: "#address-cells", Value: []byte{0, 0, 0, 1}})

	overlay := dtnode.New("__overlay__")
	overlay.AddProperty(&dtnode.Property{Name: "#address-cells", Value: []byte{0, 0, 0, 2}})

	var log changeset.Log
	err := BuildFragment(Fragment{Overlay: overlay, Target: dev}, &log, nil)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, errCellsMismatch)
}

func TestBuildFragmentCellsMatchSkipped(t *testing.T) {
	_, _, dev := newLiveTree()
	dev.AddProperty(&dtnode.Property{Name: "#address-cells", Value: []byte{0, 0, 0, 1}})

	overlay := dtnode.New("__overlay__")
	overlay.AddProperty(&dtnode.Property{Name: "#address-cells", Value: []byte{0, 0, 0, 1}})

	var log changeset.Log
	err := BuildFragment(Fragment{Overlay: overlay, Target: dev}, &log, nil)
	assert.NilError(t, err)
	assert.Equal(t, len(log), 0)
}

func TestBuildFragmentNewChildSynthesized(t *testing.T) {
	_, soc, _ := newLiveTree()

	overlay := dtnode.New("__overlay__")
	newChild := dtnode.New("dev@1")
	newChild.AddProperty(&dtnode.Property{Name: "reg", Value: []byte{0, 0, 0, 1}})
	overlay.AttachChild(newChild)

	var log changeset.Log
	err := BuildFragment(Fragment{Overlay: overlay, Target: soc}, &log, nil)
	assert.NilError(t, err)
	assert.Equal(t, len(log), 2)
	assert.Equal(t, log[0].Kind, changeset.AttachNode)
	assert.Equal(t, log[0].Parent, soc)
	assert.Assert(t, log[0].Node.Flags().Has(dtnode.FlagOverlay))
	assert.Equal(t, log[1].Kind, changeset.AddProperty)
	assert.Equal(t, log[1].Node, log[0].Node)
}

func TestBuildFragmentPhandleCollision(t *testing.T) {
	_, soc, dev := newLiveTree()
	dev.SetPhandle(3)

	overlay := dtnode.New("__overlay__")
	dup := dtnode.New("dev@0")
	dup.SetPhandle(9)
	overlay.AttachChild(dup)

	var log changeset.Log
	err := BuildFragment(Fragment{Overlay: overlay, Target: soc}, &log, nil)
	assert.ErrorIs(t, err, errPhandleCollision)
}

func TestBuildSymbolsFragmentRewritesNewSymbol(t *testing.T) {
	overlayRoot, fragments, target := buildFixupScenario()
	symbolsTarget := dtnode.New("__symbols__")
	symbolsTarget.ClearFlag(dtnode.FlagDetached)

	symbolsSrc := dtnode.New("__symbols__")
	symbolsSrc.AddProperty(&dtnode.Property{Name: "newlabel", Value: []byte("/fragment@0/__overlay__/child\x00")})

	var log changeset.Log
	err := BuildSymbolsFragment(Fragment{Overlay: symbolsSrc, Target: symbolsTarget}, overlayRoot, fragments, &log, nil)
	assert.NilError(t, err)
	assert.Equal(t, len(log), 1)
	assert.Equal(t, log[0].Node, symbolsTarget)
	assert.Equal(t, string(log[0].Property.Value), target.FullPath()+"/child\x00")
}

func TestBuildSymbolsFragmentForbidsUpdate(t *testing.T) {
	overlayRoot, fragments, _ := buildFixupScenario()
	symbolsTarget := dtnode.New("__symbols__")
	symbolsTarget.AddProperty(&dtnode.Property{Name: "existing", Value: []byte("/soc\x00")})

	symbolsSrc := dtnode.New("__symbols__")
	symbolsSrc.AddProperty(&dtnode.Property{Name: "existing", Value: []byte("/fragment@0/__overlay__\x00")})

	var log changeset.Log
	err := BuildSymbolsFragment(Fragment{Overlay: symbolsSrc, Target: symbolsTarget}, overlayRoot, fragments, &log, nil)
	assert.ErrorIs(t, err, errSymbolsUpdate)
}
