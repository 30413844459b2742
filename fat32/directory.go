package fat32

import (
	"encoding/binary"

	"github.com/tverdal/gofat32/blockdev"
	"github.com/tverdal/gofat32/errors"
)

// direntLocation pins a directory entry to the sector and byte offset it
// lives at, so callers can patch it in place without re-scanning.
type direntLocation struct {
	cluster ClusterID
	sector  SectorID
	offset  uint
}

const direntsPerSector = 512 / DirentSize

// DirectoryEngine implements entry lookup, creation, update, and deletion
// over directory cluster chains, per spec.md §4.7.
type DirectoryEngine struct {
	dev      blockdev.Device
	geom     Geometry
	dirCache *DirCache
	cluster  *ClusterLayer
}

// NewDirectoryEngine creates a directory engine sharing the given cluster
// layer and directory-sector cache with the rest of the mounted volume.
func NewDirectoryEngine(dev blockdev.Device, geom Geometry, dirCache *DirCache, cluster *ClusterLayer) *DirectoryEngine {
	return &DirectoryEngine{dev: dev, geom: geom, dirCache: dirCache, cluster: cluster}
}

// forEachSlot visits every 32-byte slot in the directory chain starting at
// firstCluster, in on-disk order, stopping at the first end-of-directory
// marker or when visit asks to stop.
func (e *DirectoryEngine) forEachSlot(
	firstCluster ClusterID,
	visit func(loc direntLocation, kind direntKind, raw rawDirent) (stop bool, err *errors.DriverError),
) *errors.DriverError {
	return e.cluster.Walk(firstCluster, func(c ClusterID) (bool, *errors.DriverError) {
		sector0, err := clusterToSector(e.geom, c)
		if err != nil {
			return false, err
		}

		for s := uint(0); s < e.geom.SectorsPerCluster; s++ {
			sector := sector0 + SectorID(s)
			buf, err := e.dirCache.ReadSector(sector)
			if err != nil {
				return false, err
			}

			for slot := 0; slot < direntsPerSector; slot++ {
				off := uint(slot * DirentSize)
				raw := decodeRawDirent(buf[off : off+DirentSize])
				kind := classifyDirent(raw)
				loc := direntLocation{cluster: c, sector: sector, offset: off}

				stop, err := visit(loc, kind, raw)
				if err != nil {
					return false, err
				}
				if stop || kind == direntEndOfDirectory {
					return true, nil
				}
			}
		}
		return false, nil
	})
}

func shortNameForLookup(name string) (ShortName, *errors.DriverError) {
	switch name {
	case ".":
		return ShortName{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}, nil
	case "..":
		return ShortName{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}, nil
	default:
		return ParseShortName(name)
	}
}

// Lookup finds the live entry named `name` in the directory chain starting
// at parent, materializing it into a Dirent. "." and ".." are recognized
// specially, since they don't fit the normal 8.3 character class.
func (e *DirectoryEngine) Lookup(parent ClusterID, name string) (Dirent, *errors.DriverError) {
	target, err := shortNameForLookup(name)
	if err != nil {
		return Dirent{}, err
	}

	var found *Dirent
	walkErr := e.forEachSlot(parent, func(_ direntLocation, kind direntKind, raw rawDirent) (bool, *errors.DriverError) {
		if kind != direntLive || raw.shortName() != target {
			return false, nil
		}
		d, err := newDirentFromRaw(raw)
		if err != nil {
			return false, err
		}
		found = &d
		return true, nil
	})
	if walkErr != nil {
		return Dirent{}, walkErr
	}
	if found == nil {
		return Dirent{}, errors.Newf(errors.KindNotFound, "no entry named %q", name)
	}
	return *found, nil
}

// findFreeSlot locates the first deleted or end-of-directory slot in the
// chain starting at parent. If the chain is entirely packed with live
// entries, it grows the chain by one zeroed cluster and returns that
// cluster's first slot.
func (e *DirectoryEngine) findFreeSlot(parent ClusterID) (direntLocation, *errors.DriverError) {
	var target *direntLocation
	walkErr := e.forEachSlot(parent, func(loc direntLocation, kind direntKind, _ rawDirent) (bool, *errors.DriverError) {
		if kind == direntDeleted || kind == direntEndOfDirectory {
			l := loc
			target = &l
			return true, nil
		}
		return false, nil
	})
	if walkErr != nil {
		return direntLocation{}, walkErr
	}
	if target != nil {
		return *target, nil
	}

	if _, err := e.cluster.ExtendChain(parent, 1); err != nil {
		return direntLocation{}, err
	}
	newCluster, err := e.cluster.findTail(parent)
	if err != nil {
		return direntLocation{}, err
	}
	sector0, err := clusterToSector(e.geom, newCluster)
	if err != nil {
		return direntLocation{}, err
	}
	return direntLocation{cluster: newCluster, sector: sector0, offset: 0}, nil
}

func (e *DirectoryEngine) createEntry(parent ClusterID, name string, attrs uint8, firstCluster ClusterID, size uint32) (Dirent, *errors.DriverError) {
	sn, err := ParseShortName(name)
	if err != nil {
		return Dirent{}, err
	}

	if _, lookErr := e.Lookup(parent, name); lookErr == nil {
		return Dirent{}, errors.Newf(errors.KindExists, "%q already exists", name)
	} else if !errors.IsKind(lookErr, errors.KindNotFound) {
		return Dirent{}, lookErr
	}

	loc, err := e.findFreeSlot(parent)
	if err != nil {
		return Dirent{}, err
	}

	high, low := splitCluster(firstCluster)
	raw := rawDirent{
		Attributes:     attrs,
		CreateDate:     DefaultEntryDate,
		CreateTime:     DefaultEntryTime,
		LastAccessDate: DefaultEntryDate,
		WriteDate:      DefaultEntryDate,
		WriteTime:      DefaultEntryTime,
		FirstClusterHigh: high,
		FirstClusterLow:  low,
		FileSize:         size,
	}
	copy(raw.Name[:], sn[0:8])
	copy(raw.Extension[:], sn[8:11])

	encoded := encodeRawDirent(raw)
	if err := e.dirCache.PatchSector(loc.sector, func(buf []byte) {
		copy(buf[loc.offset:loc.offset+DirentSize], encoded[:])
	}); err != nil {
		return Dirent{}, err
	}
	if err := e.dirCache.Flush(); err != nil {
		return Dirent{}, err
	}

	name, nameErr := FormatShortName(sn)
	if nameErr != nil {
		return Dirent{}, nameErr
	}
	return Dirent{ShortName: sn, DisplayName: name, Attributes: attrs, FirstCluster: firstCluster, Size: size}, nil
}

// CreateFile adds a zero-length file entry to parent. No cluster is
// allocated; the file engine allocates one lazily on first write.
func (e *DirectoryEngine) CreateFile(parent ClusterID, name string) (Dirent, *errors.DriverError) {
	return e.createEntry(parent, name, AttrArchive, 0, 0)
}

// bootstrapDotEntries writes the "." and ".." entries into the first
// sector of a freshly allocated, zeroed directory cluster. ".." points at
// cluster 0 when the parent is the root directory, per FAT32 convention,
// since the root directory has no directory entry of its own.
func (e *DirectoryEngine) bootstrapDotEntries(dirCluster, parentCluster ClusterID) *errors.DriverError {
	sector0, err := clusterToSector(e.geom, dirCluster)
	if err != nil {
		return err
	}

	dotParent := parentCluster
	if parentCluster == e.geom.RootCluster {
		dotParent = 0
	}

	dotHigh, dotLow := splitCluster(dirCluster)
	dotDotHigh, dotDotLow := splitCluster(dotParent)

	dot := rawDirent{
		Attributes: AttrDirectory,
		CreateDate: DefaultEntryDate, CreateTime: DefaultEntryTime,
		WriteDate: DefaultEntryDate, WriteTime: DefaultEntryTime,
		FirstClusterHigh: dotHigh, FirstClusterLow: dotLow,
	}
	dot.Name[0] = '.'
	for i := 1; i < 8; i++ {
		dot.Name[i] = ' '
	}
	for i := range dot.Extension {
		dot.Extension[i] = ' '
	}

	dotDot := rawDirent{
		Attributes: AttrDirectory,
		CreateDate: DefaultEntryDate, CreateTime: DefaultEntryTime,
		WriteDate: DefaultEntryDate, WriteTime: DefaultEntryTime,
		FirstClusterHigh: dotDotHigh, FirstClusterLow: dotDotLow,
	}
	dotDot.Name[0], dotDot.Name[1] = '.', '.'
	for i := 2; i < 8; i++ {
		dotDot.Name[i] = ' '
	}
	for i := range dotDot.Extension {
		dotDot.Extension[i] = ' '
	}

	encodedDot := encodeRawDirent(dot)
	encodedDotDot := encodeRawDirent(dotDot)

	if err := e.dirCache.PatchSector(sector0, func(buf []byte) {
		copy(buf[0:DirentSize], encodedDot[:])
		copy(buf[DirentSize:2*DirentSize], encodedDotDot[:])
	}); err != nil {
		return err
	}
	return e.dirCache.Flush()
}

// CreateDirectory allocates and initializes a new directory's first
// cluster (with "." and ".." bootstrapped), then adds its entry to parent.
func (e *DirectoryEngine) CreateDirectory(parent ClusterID, name string) (Dirent, *errors.DriverError) {
	newCluster, err := e.cluster.Allocate()
	if err != nil {
		return Dirent{}, err
	}
	if err := zeroCluster(e.dev, e.geom, newCluster); err != nil {
		return Dirent{}, err
	}
	if err := e.bootstrapDotEntries(newCluster, parent); err != nil {
		return Dirent{}, err
	}

	entry, err := e.createEntry(parent, name, AttrDirectory, newCluster, 0)
	if err != nil {
		_ = e.cluster.FreeChain(newCluster)
		return Dirent{}, err
	}
	return entry, nil
}

// directory entry field byte offsets within one 32-byte slot, matching
// decodeRawDirent/encodeRawDirent.
const (
	offsetFirstClusterHigh = 20
	offsetWriteTime        = 22
	offsetWriteDate        = 24
	offsetFirstClusterLow  = 26
	offsetFileSize         = 28
)

// UpdateEntry rewrites the first-cluster and size fields (and the
// write-date/time, per the default timestamp policy) of the live entry
// matching shortName in the directory chain starting at parent.
func (e *DirectoryEngine) UpdateEntry(parent ClusterID, shortName ShortName, firstCluster ClusterID, size uint32) *errors.DriverError {
	var target *direntLocation
	walkErr := e.forEachSlot(parent, func(loc direntLocation, kind direntKind, raw rawDirent) (bool, *errors.DriverError) {
		if kind == direntLive && raw.shortName() == shortName {
			l := loc
			target = &l
			return true, nil
		}
		return false, nil
	})
	if walkErr != nil {
		return walkErr
	}
	if target == nil {
		return errors.Newf(errors.KindNotFound, "entry %q not found for update", string(shortName[:]))
	}

	high, low := splitCluster(firstCluster)
	loc := *target
	if err := e.dirCache.PatchSector(loc.sector, func(buf []byte) {
		off := loc.offset
		binary.LittleEndian.PutUint16(buf[off+offsetFirstClusterHigh:off+offsetFirstClusterHigh+2], high)
		binary.LittleEndian.PutUint16(buf[off+offsetFirstClusterLow:off+offsetFirstClusterLow+2], low)
		binary.LittleEndian.PutUint32(buf[off+offsetFileSize:off+offsetFileSize+4], size)
		binary.LittleEndian.PutUint16(buf[off+offsetWriteTime:off+offsetWriteTime+2], DefaultEntryTime)
		binary.LittleEndian.PutUint16(buf[off+offsetWriteDate:off+offsetWriteDate+2], DefaultEntryDate)
	}); err != nil {
		return err
	}
	return e.dirCache.Flush()
}

// isDirectoryEmpty reports whether a directory chain contains only "."
// and ".." as live entries.
func (e *DirectoryEngine) isDirectoryEmpty(firstCluster ClusterID) (bool, *errors.DriverError) {
	empty := true
	walkErr := e.forEachSlot(firstCluster, func(_ direntLocation, kind direntKind, raw rawDirent) (bool, *errors.DriverError) {
		if kind != direntLive {
			return false, nil
		}
		name, err := FormatShortName(raw.shortName())
		if err != nil {
			return false, err
		}
		if name != "." && name != ".." {
			empty = false
			return true, nil
		}
		return false, nil
	})
	return empty, walkErr
}

// Unlink marks the entry named `name` deleted and frees its cluster chain,
// if any. Unlinking a non-empty directory is rejected with KindInvalid.
func (e *DirectoryEngine) Unlink(parent ClusterID, name string) *errors.DriverError {
	if name == "." || name == ".." {
		return errors.Newf(errors.KindInvalid, "cannot unlink %q", name)
	}

	entry, err := e.Lookup(parent, name)
	if err != nil {
		return err
	}

	if entry.IsDirectory() {
		empty, err := e.isDirectoryEmpty(entry.FirstCluster)
		if err != nil {
			return err
		}
		if !empty {
			return errors.Newf(errors.KindInvalid, "directory %q is not empty", name)
		}
	}

	var target *direntLocation
	walkErr := e.forEachSlot(parent, func(loc direntLocation, kind direntKind, raw rawDirent) (bool, *errors.DriverError) {
		if kind == direntLive && raw.shortName() == entry.ShortName {
			l := loc
			target = &l
			return true, nil
		}
		return false, nil
	})
	if walkErr != nil {
		return walkErr
	}
	if target == nil {
		return errors.Newf(errors.KindNotFound, "no entry named %q", name)
	}

	if err := e.dirCache.PatchSector(target.sector, func(buf []byte) {
		buf[target.offset] = 0xE5
	}); err != nil {
		return err
	}

	if entry.FirstCluster >= 2 {
		if err := e.cluster.FreeChain(entry.FirstCluster); err != nil {
			return err
		}
	}
	return e.dirCache.Flush()
}

// ReadDir returns every live entry in the directory chain starting at
// firstCluster, including "." and "..".
func (e *DirectoryEngine) ReadDir(firstCluster ClusterID) ([]Dirent, *errors.DriverError) {
	var out []Dirent
	walkErr := e.forEachSlot(firstCluster, func(_ direntLocation, kind direntKind, raw rawDirent) (bool, *errors.DriverError) {
		if kind != direntLive {
			return false, nil
		}
		d, err := newDirentFromRaw(raw)
		if err != nil {
			return false, err
		}
		out = append(out, d)
		return false, nil
	})
	return out, walkErr
}
