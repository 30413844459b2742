package fat32

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tverdal/gofat32/diskutil"
)

func TestDirCacheWriteReadRoundTrip(t *testing.T) {
	dev := diskutil.NewMemDevice(16)
	dc := NewDirCache(dev)

	data := bytes.Repeat([]byte{0xAB}, 512)
	require.Nil(t, dc.WriteSector(3, data))

	read, err := dc.ReadSector(3)
	require.Nil(t, err)
	assert.Equal(t, data, read)
}

func TestDirCacheFlushPersistsToDevice(t *testing.T) {
	dev := diskutil.NewMemDevice(16)
	dc := NewDirCache(dev)

	data := bytes.Repeat([]byte{0xCD}, 512)
	require.Nil(t, dc.WriteSector(5, data))
	require.Nil(t, dc.Flush())

	fresh := NewDirCache(dev)
	read, err := fresh.ReadSector(5)
	require.Nil(t, err)
	assert.Equal(t, data, read)
}

func TestDirCacheWriteSectorRejectsWrongSize(t *testing.T) {
	dev := diskutil.NewMemDevice(16)
	dc := NewDirCache(dev)

	err := dc.WriteSector(0, make([]byte, 100))
	assert.NotNil(t, err)
}

func TestDirCachePatchSectorAppliesInPlace(t *testing.T) {
	dev := diskutil.NewMemDevice(16)
	dc := NewDirCache(dev)

	require.Nil(t, dc.WriteSector(2, make([]byte, 512)))
	require.Nil(t, dc.PatchSector(2, func(buf []byte) {
		buf[0] = 0x42
		buf[10] = 0x99
	}))

	read, err := dc.ReadSector(2)
	require.Nil(t, err)
	assert.Equal(t, byte(0x42), read[0])
	assert.Equal(t, byte(0x99), read[10])
}

func TestDirCacheSwitchingSectorsFlushesPriorDirty(t *testing.T) {
	dev := diskutil.NewMemDevice(16)
	dc := NewDirCache(dev)

	require.Nil(t, dc.WriteSector(1, bytes.Repeat([]byte{0x11}, 512)))
	require.Nil(t, dc.WriteSector(2, bytes.Repeat([]byte{0x22}, 512)))

	fresh := NewDirCache(dev)
	read, err := fresh.ReadSector(1)
	require.Nil(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x11}, 512), read, "writing sector 2 should have flushed sector 1 first")
}
