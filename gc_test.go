package hawk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGCCollectsSelfReferentialMap(t *testing.T) {
	gc := NewGC()
	m := NewMap(gc)
	IncRefVal(m) // simulate the variable binding holding it
	m.Set("self", m) // Set takes the cycle's own internal reference

	// Drop the external binding: refcount falls to 1 (the cycle),
	// never to 0, so plain refcounting alone would leak it.
	DecRefVal(m)
	require.EqualValues(t, 1, GCRefs(m))

	gc.Collect(numGenerations - 1)

	// A trial-deletion pass should have recognized the surviving
	// reference as entirely internal and reclaimed the cycle: the
	// node should no longer be chained into any generation.
	assert.False(t, m.gcNode.chained)
}

func TestGCDoesNotCollectExternallyRootedMap(t *testing.T) {
	gc := NewGC()
	m := NewMap(gc)
	IncRefVal(m)

	gc.Collect(numGenerations - 1)

	assert.True(t, m.gcNode.chained)
	assert.EqualValues(t, 1, GCRefs(m))
}

func TestGCThresholdGettersSetters(t *testing.T) {
	gc := NewGC()
	gc.SetThreshold(0, 10)
	assert.Equal(t, 10, gc.GetThreshold(0))
}
