package fat32

import (
	"github.com/hashicorp/go-multierror"

	"github.com/tverdal/gofat32/blockdev"
	"github.com/tverdal/gofat32/errors"
	"github.com/tverdal/gofat32/geometry"
)

// Mount parses, validates, and attaches to a FAT32 volume on dev,
// following the seven-step protocol in spec.md §4.9. It returns the
// superblock, the root node, a non-fatal warnings bundle describing any
// corrections the validator made (nil if the volume was clean), and a
// fatal error if the volume could not be mounted at all.
func Mount(dev blockdev.Device, logger Logger) (*Superblock, *Node, *multierror.Error, *errors.DriverError) {
	if logger == nil {
		logger = noopLogger{}
	}

	bootSector := make([]byte, 512)
	if err := dev.ReadSectors(0, 1, bootSector); err != nil {
		return nil, nil, nil, err
	}
	geom, err := parseBootSector(bootSector)
	if err != nil {
		return nil, nil, nil, err
	}

	sb := &Superblock{
		Device:   dev,
		Geometry: geom,
		Logger:   logger,
	}

	sb.FAT = NewFATCache(dev, geom, sb.noteCorruption)
	sb.Dir = NewDirCache(dev)

	fsInfoSector := make([]byte, 512)
	if err := dev.ReadSectors(uint64(geom.FSInfoSector), 1, fsInfoSector); err != nil {
		return nil, nil, nil, err
	}
	fsinfo, err := parseFSInfo(fsInfoSector)
	if err != nil {
		return nil, nil, nil, err
	}
	sb.FSInfo = &fsinfo

	sb.Cluster = NewClusterLayer(sb.FAT, dev, geom, sb.FSInfo, sb.persistFSInfo, sb.noteCorruption)
	sb.DirEngine = NewDirectoryEngine(dev, geom, sb.Dir, sb.Cluster)
	sb.FileEngine = NewFileEngine(dev, geom, sb.Cluster)

	raw1, err := sb.FAT.Get(1)
	if err != nil {
		return nil, nil, nil, err
	}
	if clearErr := sb.FAT.Set(1, ClusterID(uint32(raw1)&^(uint32(1)<<27))); clearErr != nil {
		return nil, nil, nil, clearErr
	}
	if flushErr := sb.FAT.Flush(); flushErr != nil {
		return nil, nil, nil, flushErr
	}

	if sb.FSInfo.FreeClusters == FSInfoUnknown || sb.FSInfo.NextFree == FSInfoUnknown {
		if err := sb.recomputeFSInfo(); err != nil {
			return nil, nil, nil, err
		}
	}

	root := rootNode(sb)

	if err := runValidator(sb); err != nil {
		return nil, nil, nil, err
	}

	if err := sb.Cluster.RebuildOccupancy(); err != nil {
		return nil, nil, nil, err
	}

	if profile, ok := geometry.Lookup(geom.TotalSectors); ok {
		sb.Profile = &profile
	}

	return sb, root, sb.Warnings, nil
}

// Unmount flushes every cache, reconciles FSInfo, finalizes FAT[1]'s
// status bits, and asks the device to flush, per spec.md §4.9's unmount
// protocol. It returns OK (nil) if every step succeeded; otherwise it
// returns the first IO error encountered, having still attempted every
// remaining step.
func Unmount(sb *Superblock) *errors.DriverError {
	var firstErr *errors.DriverError

	if err := sb.FAT.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := sb.Dir.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}

	free, err := sb.Cluster.CountFreeClusters()
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else if free != sb.FSInfo.FreeClusters {
		sb.FSInfo.FreeClusters = free
		if err := sb.persistFSInfo(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := sb.FAT.SetFAT1Bits(true, !sb.HasErrors); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := sb.FAT.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}

	if err := sb.Device.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}
