package fat32

import (
	"encoding/binary"

	"github.com/tverdal/gofat32/blockdev"
	"github.com/tverdal/gofat32/errors"
)

// FATCache is the single-sector write-back cache over the FAT region,
// spec.md §4.3. It mirrors writes to every FAT copy on flush and carries
// the FAT[1] status-bit repair rule.
type FATCache struct {
	cache *sectorCache
	dev   blockdev.Device
	geom  Geometry

	// onCorruption is called whenever the cache observes or causes
	// structural damage that should set the volume's has-errors flag,
	// without the cache itself owning that flag (spec.md §9).
	onCorruption func(reason string)
}

// NewFATCache creates an empty FAT cache over dev using geom's layout.
func NewFATCache(dev blockdev.Device, geom Geometry, onCorruption func(reason string)) *FATCache {
	return &FATCache{
		cache:        newSectorCache(),
		dev:          dev,
		geom:         geom,
		onCorruption: onCorruption,
	}
}

func (fc *FATCache) locate(cluster ClusterID) (SectorID, uint, *errors.DriverError) {
	if cluster < 1 || uint64(cluster) >= uint64(fc.geom.TotalClusters)+2 {
		return 0, 0, errors.Newf(errors.KindInvalid, "cluster %d out of range [1, %d)", cluster, fc.geom.TotalClusters+2)
	}
	byteOffset := uint64(cluster) * 4
	sector := fc.geom.FATStart + SectorID(byteOffset/512)
	offset := uint(byteOffset % 512)
	return sector, offset, nil
}

func (fc *FATCache) ensureLoaded(sector SectorID) *errors.DriverError {
	if fc.cache.holds(sector) {
		return nil
	}
	if fc.cache.isDirty() {
		if err := fc.Flush(); err != nil {
			return err
		}
	}

	buf := make([]byte, 512)
	if err := fc.dev.ReadSectors(uint64(sector), 1, buf); err != nil {
		return err
	}
	fc.cache.load(sector, buf)
	return nil
}

func (fc *FATCache) writeRaw(offset uint, newLow28 uint32) {
	existing := binary.LittleEndian.Uint32(fc.cache.buf[offset : offset+4])
	merged := (existing & fatHighNibbleMask) | (newLow28 & fatEntryMask)
	binary.LittleEndian.PutUint32(fc.cache.buf[offset:offset+4], merged)
	fc.cache.markDirty()
}

// Get returns the value of FAT entry `cluster`, masked to its low 28 data
// bits. Reading cluster 1 applies the FAT[1] repair rule: a BAD value or a
// nonzero high nibble is rewritten to the canonical 0x0FFFFFFF in place.
func (fc *FATCache) Get(cluster ClusterID) (ClusterID, *errors.DriverError) {
	sector, offset, err := fc.locate(cluster)
	if err != nil {
		return 0, err
	}
	if err := fc.ensureLoaded(sector); err != nil {
		return 0, err
	}

	raw := binary.LittleEndian.Uint32(fc.cache.buf[offset : offset+4])
	value := ClusterID(raw & fatEntryMask)

	if cluster == 1 {
		highNibble := raw & fatHighNibbleMask
		if value == ClusterBad || highNibble != 0 {
			// Written whole, not via writeRaw, so the high nibble is cleared.
			binary.LittleEndian.PutUint32(fc.cache.buf[offset:offset+4], fat1CanonicalValue)
			fc.cache.markDirty()
			if fc.onCorruption != nil {
				fc.onCorruption("FAT[1] had a bad value or nonzero high nibble; repaired to canonical status bits")
			}
			return ClusterID(fat1CanonicalValue & fatEntryMask), nil
		}
	}

	return value, nil
}

// Set writes value into FAT entry `cluster`, preserving whatever is
// currently in that entry's high 4 reserved bits.
func (fc *FATCache) Set(cluster ClusterID, value ClusterID) *errors.DriverError {
	sector, offset, err := fc.locate(cluster)
	if err != nil {
		return err
	}
	if err := fc.ensureLoaded(sector); err != nil {
		return err
	}
	fc.writeRaw(offset, uint32(value))
	return nil
}

// SetFAT1Bits rewrites FAT[1] preserving the low 26 data bits but setting
// bit 27 (clean-shutdown) and bit 26 (hard-error) to the given values. Used
// by unmount, which sets bit 27 and sets bit 26 only when the volume has no
// recorded errors.
func (fc *FATCache) SetFAT1Bits(cleanShutdown, noErrors bool) *errors.DriverError {
	current, err := fc.Get(1)
	if err != nil {
		return err
	}
	value := uint32(current)
	value = setBit(value, 27, cleanShutdown)
	value = setBit(value, 26, noErrors)
	return fc.Set(1, ClusterID(value))
}

func setBit(value uint32, bit uint, on bool) uint32 {
	mask := uint32(1) << bit
	if on {
		return value | mask
	}
	return value &^ mask
}

// Flush writes the cached sector back to FAT copy #0 and mirrors it to
// every other FAT copy. A failure to write the primary copy is fatal; a
// failure to write a backup copy sets has-errors but does not fail the
// flush, per spec.md §4.3.
func (fc *FATCache) Flush() *errors.DriverError {
	if !fc.cache.isDirty() {
		return nil
	}

	if err := fc.dev.WriteSectors(uint64(fc.cache.sector), 1, fc.cache.buf[:]); err != nil {
		return err
	}

	for k := uint(1); k < fc.geom.NumFATs; k++ {
		backupSector := fc.cache.sector + SectorID(k*fc.geom.SectorsPerFAT)
		if err := fc.dev.WriteSectors(uint64(backupSector), 1, fc.cache.buf[:]); err != nil {
			if fc.onCorruption != nil {
				fc.onCorruption("failed to mirror FAT sector to backup copy " + errString(err))
			}
			continue
		}
	}

	fc.cache.markClean()
	return nil
}

func errString(err *errors.DriverError) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
