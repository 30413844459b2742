// Package blockdev defines the block-device collaborator the fat32 driver
// consumes. It owns nothing about FAT32 itself — it only knows how to move
// fixed-size sectors in and out of some backing store.
package blockdev

import (
	"io"

	"github.com/tverdal/gofat32/errors"
)

// SectorSize is the only sector size this driver supports, per spec.
const SectorSize = 512

// Device is the narrow interface the fat32 driver depends on. LBA is a
// zero-based sector address; Count is the number of consecutive 512-byte
// sectors to transfer. The adapter does not retry; retry policy belongs to
// the caller.
type Device interface {
	ReadSectors(lba uint64, count uint32, buf []byte) *errors.DriverError
	WriteSectors(lba uint64, count uint32, buf []byte) *errors.DriverError
	Flush() *errors.DriverError
}

// FileDevice adapts any io.ReadWriteSeeker (typically an *os.File opened on a
// disk image) into a Device with fixed 512-byte sectors starting at byte 0.
type FileDevice struct {
	stream io.ReadWriteSeeker
	syncer interface{ Sync() error }
}

// NewFileDevice wraps stream as a Device. If stream also implements
// `Sync() error` (as *os.File does), Flush calls it; otherwise Flush is a
// no-op that always succeeds.
func NewFileDevice(stream io.ReadWriteSeeker) *FileDevice {
	dev := &FileDevice{stream: stream}
	if syncer, ok := stream.(interface{ Sync() error }); ok {
		dev.syncer = syncer
	}
	return dev
}

func (d *FileDevice) seek(lba uint64) *errors.DriverError {
	_, err := d.stream.Seek(int64(lba)*SectorSize, io.SeekStart)
	if err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	return nil
}

// ReadSectors reads count consecutive sectors starting at lba into buf. buf
// must be exactly count*SectorSize bytes.
func (d *FileDevice) ReadSectors(lba uint64, count uint32, buf []byte) *errors.DriverError {
	want := int(count) * SectorSize
	if len(buf) != want {
		return errors.Newf(errors.KindInvalid, "read buffer is %d bytes, want %d", len(buf), want)
	}
	if derr := d.seek(lba); derr != nil {
		return derr
	}
	n, err := io.ReadFull(d.stream, buf)
	if err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	if n != want {
		return errors.Newf(errors.KindIO, "short read at sector %d: got %d of %d bytes", lba, n, want)
	}
	return nil
}

// WriteSectors writes count consecutive sectors starting at lba from buf.
// buf must be exactly count*SectorSize bytes.
func (d *FileDevice) WriteSectors(lba uint64, count uint32, buf []byte) *errors.DriverError {
	want := int(count) * SectorSize
	if len(buf) != want {
		return errors.Newf(errors.KindInvalid, "write buffer is %d bytes, want %d", len(buf), want)
	}
	if derr := d.seek(lba); derr != nil {
		return derr
	}
	n, err := d.stream.Write(buf)
	if err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	if n != want {
		return errors.Newf(errors.KindIO, "short write at sector %d: wrote %d of %d bytes", lba, n, want)
	}
	return nil
}

// Flush asks the backing store to persist its writes, if it's capable of
// doing so.
func (d *FileDevice) Flush() *errors.DriverError {
	if d.syncer == nil {
		return nil
	}
	if err := d.syncer.Sync(); err != nil {
		return errors.Wrap(errors.KindIO, err)
	}
	return nil
}
