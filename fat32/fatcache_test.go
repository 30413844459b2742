package fat32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFATCacheGetSetRoundTrip(t *testing.T) {
	dev, geom := buildTestVolume(t, defaultTestVolumeParams())
	fc := NewFATCache(dev, geom, nil)

	require.Nil(t, fc.Set(5, ClusterEOC))
	val, err := fc.Get(5)
	require.Nil(t, err)
	assert.Equal(t, ClusterEOC, val)
}

func TestFATCacheFlushMirrorsAcrossCopies(t *testing.T) {
	dev, geom := buildTestVolume(t, defaultTestVolumeParams())
	fc := NewFATCache(dev, geom, nil)

	require.Nil(t, fc.Set(10, ClusterID(99)))
	require.Nil(t, fc.Flush())

	for k := uint(0); k < geom.NumFATs; k++ {
		// Reach directly into copy k by faking its FATStart offset.
		copyGeom := geom
		copyGeom.FATStart = geom.FATStart + SectorID(k*geom.SectorsPerFAT)
		other := NewFATCache(dev, copyGeom, nil)
		val, err := other.Get(10)
		require.Nil(t, err)
		assert.Equal(t, ClusterID(99), val, "FAT copy %d should have been mirrored", k)
	}
}

func TestFATCacheGetOutOfRangeClusterFails(t *testing.T) {
	dev, geom := buildTestVolume(t, defaultTestVolumeParams())
	fc := NewFATCache(dev, geom, nil)

	_, err := fc.Get(ClusterID(geom.TotalClusters + 100))
	assert.NotNil(t, err)

	_, err = fc.Get(0)
	assert.NotNil(t, err)
}

func TestFATCacheSetPreservesHighNibble(t *testing.T) {
	dev, geom := buildTestVolume(t, defaultTestVolumeParams())
	fc := NewFATCache(dev, geom, nil)

	// Seed a high nibble bit directly, then overwrite the low 28 bits and
	// confirm the nibble survives.
	sector, offset, err := fc.locate(20)
	require.Nil(t, err)
	require.Nil(t, fc.ensureLoaded(sector))
	fc.cache.buf[offset+3] |= 0x10 // set a bit in the reserved high nibble
	fc.cache.markDirty()

	require.Nil(t, fc.Set(20, ClusterEOC))
	require.Nil(t, fc.Flush())

	buf := make([]byte, 512)
	require.Nil(t, dev.ReadSectors(uint64(sector), 1, buf))
	assert.Equal(t, byte(0x10), buf[offset+3]&0x10)
}

func TestFATCacheGetRepairsBadFAT1(t *testing.T) {
	dev, geom := buildTestVolume(t, defaultTestVolumeParams())
	fc := NewFATCache(dev, geom, nil)

	require.Nil(t, fc.Set(1, ClusterBad))
	require.Nil(t, fc.Flush())

	val, err := fc.Get(1)
	require.Nil(t, err)
	assert.Equal(t, ClusterID(fat1CanonicalValue&fatEntryMask), val)
}

func TestFATCacheSetFAT1Bits(t *testing.T) {
	dev, geom := buildTestVolume(t, defaultTestVolumeParams())
	fc := NewFATCache(dev, geom, nil)

	require.Nil(t, fc.SetFAT1Bits(false, true))
	val, err := fc.Get(1)
	require.Nil(t, err)
	assert.Equal(t, uint32(0), uint32(val)&(1<<27))
	assert.NotEqual(t, uint32(0), uint32(val)&(1<<26))

	require.Nil(t, fc.SetFAT1Bits(true, false))
	val, err = fc.Get(1)
	require.Nil(t, err)
	assert.NotEqual(t, uint32(0), uint32(val)&(1<<27))
	assert.Equal(t, uint32(0), uint32(val)&(1<<26))
}
