package hawk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefCountingIncDec(t *testing.T) {
	gc := NewGC()
	m := NewMap(gc)
	assert.EqualValues(t, 0, GCRefs(m))
	IncRefVal(m)
	assert.EqualValues(t, 1, GCRefs(m))
	IncRefVal(m)
	assert.EqualValues(t, 2, GCRefs(m))
	DecRefVal(m)
	assert.EqualValues(t, 1, GCRefs(m))
}

func TestImmediateIntNeverRefcounted(t *testing.T) {
	v := Int(42)
	IncRefVal(v)
	assert.EqualValues(t, 0, GCRefs(v))
}

func TestMapSetGetDelete(t *testing.T) {
	gc := NewGC()
	m := NewMap(gc)
	m.Set("k", Int(7))
	v, ok := m.Get("k")
	assert.True(t, ok)
	assert.Equal(t, Int(7), v)
	m.Delete("k")
	_, ok = m.Get("k")
	assert.False(t, ok)
}

func TestArraySetGetLen(t *testing.T) {
	gc := NewGC()
	a := NewArray(gc)
	a.Set(1, Int(10))
	a.Set(3, Int(30))
	assert.Equal(t, 3, a.Len())
	v, ok := a.Get(2)
	assert.False(t, ok)
	assert.Nil(t, v)
	v, ok = a.Get(3)
	assert.True(t, ok)
	assert.Equal(t, Int(30), v)
}

func TestToFloatAndToInt(t *testing.T) {
	assert.Equal(t, 3.5, ToFloat(Float(3.5), true))
	assert.Equal(t, int64(3), ToInt(Float(3.9), true))
	assert.Equal(t, 12.0, ToFloat(Int(12), true))
}

func TestFormatNumberIntegralVsFloat(t *testing.T) {
	assert.Equal(t, "3", FormatNumber(3.0, "%.6g"))
	assert.Equal(t, "3.5", FormatNumber(3.5, "%.6g"))
}
