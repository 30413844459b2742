package blockdev

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

func newTestDevice(sectors int) *FileDevice {
	backing := make([]byte, sectors*SectorSize)
	return NewFileDevice(bytesextra.NewReadWriteSeeker(backing))
}

func TestFileDeviceWriteThenReadRoundTrip(t *testing.T) {
	dev := newTestDevice(4)
	data := bytes.Repeat([]byte{0x11}, SectorSize*2)

	require.Nil(t, dev.WriteSectors(1, 2, data))

	buf := make([]byte, SectorSize*2)
	require.Nil(t, dev.ReadSectors(1, 2, buf))
	assert.Equal(t, data, buf)
}

func TestFileDeviceReadRejectsWrongBufferSize(t *testing.T) {
	dev := newTestDevice(4)
	err := dev.ReadSectors(0, 1, make([]byte, 10))
	assert.NotNil(t, err)
}

func TestFileDeviceWriteRejectsWrongBufferSize(t *testing.T) {
	dev := newTestDevice(4)
	err := dev.WriteSectors(0, 1, make([]byte, 10))
	assert.NotNil(t, err)
}

func TestFileDeviceFlushIsNoOpWithoutSyncer(t *testing.T) {
	dev := newTestDevice(1)
	assert.Nil(t, dev.Flush())
}

func TestFileDeviceWritesDoNotOverlapAdjacentSectors(t *testing.T) {
	dev := newTestDevice(3)
	require.Nil(t, dev.WriteSectors(0, 1, bytes.Repeat([]byte{0xAA}, SectorSize)))
	require.Nil(t, dev.WriteSectors(1, 1, bytes.Repeat([]byte{0xBB}, SectorSize)))

	buf := make([]byte, SectorSize)
	require.Nil(t, dev.ReadSectors(0, 1, buf))
	assert.Equal(t, bytes.Repeat([]byte{0xAA}, SectorSize), buf)

	require.Nil(t, dev.ReadSectors(1, 1, buf))
	assert.Equal(t, bytes.Repeat([]byte{0xBB}, SectorSize), buf)
}
