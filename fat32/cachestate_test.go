package fat32

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSectorCacheStartsEmpty(t *testing.T) {
	c := newSectorCache()
	assert.False(t, c.holds(0))
	assert.False(t, c.isDirty())
}

func TestSectorCacheLoadHoldsAndIsClean(t *testing.T) {
	c := newSectorCache()
	data := bytes.Repeat([]byte{0x5A}, 512)

	c.load(7, data)
	assert.True(t, c.holds(7))
	assert.False(t, c.holds(8))
	assert.False(t, c.isDirty())
	assert.Equal(t, data, c.buf[:])
}

func TestSectorCacheMarkDirtyRequiresLoadedSector(t *testing.T) {
	c := newSectorCache()
	c.markDirty() // no-op on an empty cache
	assert.False(t, c.isDirty())

	c.load(1, make([]byte, 512))
	c.markDirty()
	assert.True(t, c.isDirty())
}

func TestSectorCacheMarkCleanTransitionsFromDirty(t *testing.T) {
	c := newSectorCache()
	c.load(2, make([]byte, 512))
	c.markDirty()
	require := assert.New(t)
	require.True(c.isDirty())

	c.markClean()
	require.False(c.isDirty())
	require.True(c.holds(2))
}

func TestSectorCacheReset(t *testing.T) {
	c := newSectorCache()
	c.load(3, make([]byte, 512))
	c.markDirty()

	c.reset()
	assert.False(t, c.holds(3))
	assert.False(t, c.isDirty())
}
