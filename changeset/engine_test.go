package changeset

import (
	"testing"

	"github.com/ngicks/dtoverlay/dtnode"
	"gotest.tools/v3/assert"
)

func TestApplyRevertRoundTrip(t *testing.T) {
	root := dtnode.New("")
	root.ClearFlag(dtnode.FlagDetached)
	a := dtnode.New("a")
	root.AttachChild(a)
	a.AddProperty(&dtnode.Property{Name: "p", Value: []byte("x")})

	newNode := dtnode.New("dev@0")
	log := Log{
		{Kind: AddProperty, Node: a, Property: &dtnode.Property{Name: "q", Value: []byte("y")}},
		{Kind: AttachNode, Node: newNode, Parent: a},
		{Kind: AddProperty, Node: newNode, Property: &dtnode.Property{Name: "compatible", Value: []byte("x")}},
	}

	assert.NilError(t, Apply(log))
	assert.Assert(t, a.Property("q") != nil)
	_, attached := a.ChildByBasename("dev@0")
	assert.Assert(t, attached)

	assert.NilError(t, Revert(log))
	assert.Assert(t, a.Property("q") == nil)
	_, stillAttached := a.ChildByBasename("dev@0")
	assert.Assert(t, !stillAttached)
	// pre-existing state untouched
	assert.Assert(t, a.Property("p") != nil)
}

func TestApplyRollsBackOnFailure(t *testing.T) {
	root := dtnode.New("")
	root.ClearFlag(dtnode.FlagDetached)
	a := dtnode.New("a")
	root.AttachChild(a)

	log := Log{
		{Kind: AddProperty, Node: a, Property: &dtnode.Property{Name: "q", Value: []byte("y")}},
		{Kind: RemoveProperty, Node: a, Property: &dtnode.Property{Name: "does-not-exist"}},
	}

	err := Apply(log)
	assert.ErrorIs(t, err, ErrPropertyMissing)
	assert.Assert(t, a.Property("q") == nil)
}

func TestUpdatePropertyRevertRestoresPrior(t *testing.T) {
	root := dtnode.New("")
	root.ClearFlag(dtnode.FlagDetached)
	a := dtnode.New("a")
	root.AttachChild(a)
	a.AddProperty(&dtnode.Property{Name: "#address-cells", Value: []byte{0, 0, 0, 1}})

	log := Log{
		{Kind: UpdateProperty, Node: a, Property: &dtnode.Property{Name: "#address-cells", Value: []byte{0, 0, 0, 2}}},
	}
	assert.NilError(t, Apply(log))
	assert.DeepEqual(t, a.Property("#address-cells").Value, []byte{0, 0, 0, 2})

	assert.NilError(t, Revert(log))
	assert.DeepEqual(t, a.Property("#address-cells").Value, []byte{0, 0, 0, 1})
}
