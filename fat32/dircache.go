package fat32

import (
	"github.com/tverdal/gofat32/blockdev"
	"github.com/tverdal/gofat32/errors"
)

// DirCache is the single-sector write-back cache over directory data,
// spec.md §4.4. It has the same write-back shape as FATCache but is never
// mirrored; it is flushed at unmount and opportunistically at the end of
// directory-mutating writes.
type DirCache struct {
	cache *sectorCache
	dev   blockdev.Device
}

// NewDirCache creates an empty directory-sector cache over dev.
func NewDirCache(dev blockdev.Device) *DirCache {
	return &DirCache{cache: newSectorCache(), dev: dev}
}

func (dc *DirCache) ensureLoaded(sector SectorID) *errors.DriverError {
	if dc.cache.holds(sector) {
		return nil
	}
	if dc.cache.isDirty() {
		if err := dc.Flush(); err != nil {
			return err
		}
	}

	buf := make([]byte, 512)
	if err := dc.dev.ReadSectors(uint64(sector), 1, buf); err != nil {
		return err
	}
	dc.cache.load(sector, buf)
	return nil
}

// ReadSector returns a copy of the given sector's current contents,
// loading it from storage first if necessary.
func (dc *DirCache) ReadSector(sector SectorID) ([]byte, *errors.DriverError) {
	if err := dc.ensureLoaded(sector); err != nil {
		return nil, err
	}
	out := make([]byte, 512)
	copy(out, dc.cache.buf[:])
	return out, nil
}

// WriteSector overwrites a single sector's data in the cache, marking it
// dirty. data must be exactly 512 bytes.
func (dc *DirCache) WriteSector(sector SectorID, data []byte) *errors.DriverError {
	if len(data) != 512 {
		return errors.Newf(errors.KindInvalid, "directory sector write must be 512 bytes, got %d", len(data))
	}
	if err := dc.ensureLoaded(sector); err != nil {
		return err
	}
	copy(dc.cache.buf[:], data)
	dc.cache.markDirty()
	return nil
}

// PatchSector reads the given sector (loading it if necessary), applies
// patch to the cached buffer in place, and marks it dirty. This avoids a
// caller having to read-modify-write the full 512 bytes itself for small
// updates like rewriting one directory entry.
func (dc *DirCache) PatchSector(sector SectorID, patch func(buf []byte)) *errors.DriverError {
	if err := dc.ensureLoaded(sector); err != nil {
		return err
	}
	patch(dc.cache.buf[:])
	dc.cache.markDirty()
	return nil
}

// Flush writes the cached sector back to storage if dirty.
func (dc *DirCache) Flush() *errors.DriverError {
	if !dc.cache.isDirty() {
		return nil
	}
	if err := dc.dev.WriteSectors(uint64(dc.cache.sector), 1, dc.cache.buf[:]); err != nil {
		return err
	}
	dc.cache.markClean()
	return nil
}
