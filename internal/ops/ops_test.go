package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	d, ok := Lookup(Unique)
	assert.True(t, ok)
	assert.Equal(t, Pure, d.Class)
	assert.Equal(t, 2, d.NumOutputs)

	_, ok = Lookup("MadeUpOp")
	assert.False(t, ok)
	assert.Equal(t, Unknown, ClassOf("MadeUpOp"))
	assert.Equal(t, 1, DefaultOutputs("MadeUpOp"))
}

func TestIsFoldableKind(t *testing.T) {
	assert.True(t, IsFoldableKind(AddN))
	assert.True(t, IsFoldableKind(Shape))
	assert.False(t, IsFoldableKind(Const), "literals are already folded")
	assert.False(t, IsFoldableKind(PlaceholderWithDefault))
	assert.False(t, IsFoldableKind(VariableV2))
	assert.False(t, IsFoldableKind("RandomUniform"))
	assert.False(t, IsFoldableKind("Print"))
	assert.False(t, IsFoldableKind("Merge"))
	assert.False(t, IsFoldableKind("MadeUpOp"))
}
