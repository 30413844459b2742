// Package diskutil provides an in-memory block device for tests and for
// tooling that wants to preview repairs without touching a real disk image.
package diskutil

import (
	"github.com/xaionaro-go/bytesextra"

	"github.com/tverdal/gofat32/blockdev"
)

// MemDevice is a blockdev.Device backed entirely by a byte slice. It never
// touches the filesystem, so it's cheap to spin up per test case and to use
// as a scratch copy for "what would repair do" previews.
type MemDevice struct {
	*blockdev.FileDevice
	backing []byte
}

// NewMemDevice creates a MemDevice over totalSectors sectors of zeroed
// backing storage.
func NewMemDevice(totalSectors uint) *MemDevice {
	backing := make([]byte, totalSectors*blockdev.SectorSize)
	return &MemDevice{
		FileDevice: blockdev.NewFileDevice(bytesextra.NewReadWriteSeeker(backing)),
		backing:    backing,
	}
}

// NewMemDeviceFromImage wraps an existing disk image already loaded into
// memory (e.g. a decompressed test fixture) as a MemDevice.
func NewMemDeviceFromImage(image []byte) *MemDevice {
	return &MemDevice{
		FileDevice: blockdev.NewFileDevice(bytesextra.NewReadWriteSeeker(image)),
		backing:    image,
	}
}

// Bytes returns the current contents of the backing storage. Mutating the
// returned slice mutates the device.
func (d *MemDevice) Bytes() []byte {
	return d.backing
}

// Clone returns a new MemDevice with an independent copy of the current
// backing storage, useful for taking a snapshot before a risky mutation.
func (d *MemDevice) Clone() *MemDevice {
	copyOf := make([]byte, len(d.backing))
	copy(copyOf, d.backing)
	return NewMemDeviceFromImage(copyOf)
}
