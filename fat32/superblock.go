package fat32

import (
	"github.com/hashicorp/go-multierror"

	"github.com/tverdal/gofat32/blockdev"
	"github.com/tverdal/gofat32/errors"
	"github.com/tverdal/gofat32/geometry"
)

// Logger is the ambient diagnostics capability a mounted volume is given.
// The core never writes to a process-global terminal; it calls through
// this interface instead, so a host can wire it to *log.Logger, a no-op,
// or anything else satisfying the signature.
type Logger interface {
	Printf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// Superblock owns the caches, FSInfo snapshot, and cluster/directory/file
// engines for one mounted FAT32 volume, per spec.md §3.
type Superblock struct {
	Device   blockdev.Device
	Geometry Geometry

	FAT     *FATCache
	Dir     *DirCache
	FSInfo  *FSInfo
	Cluster *ClusterLayer

	DirEngine  *DirectoryEngine
	FileEngine *FileEngine

	// HasErrors is set by any operation that observes corruption. It is
	// never mutated by the cache primitives themselves (spec.md §9).
	HasErrors bool

	// Warnings accumulates validator findings and other non-fatal
	// corruption notices for the duration of one mount.
	Warnings *multierror.Error

	// Profile is the matched advisory geometry preset for this volume's
	// size, if any. Purely informational.
	Profile *geometry.Profile

	Logger Logger
}

func (sb *Superblock) noteCorruption(reason string) {
	sb.HasErrors = true
	sb.Warnings = multierror.Append(sb.Warnings, errors.Newf(errors.KindCorrupt, "%s", reason))
	sb.Logger.Printf("fat32: %s", reason)
}

// persistFSInfo writes the current in-memory FSInfo snapshot to the
// primary FSInfo sector and, if it lands inside the reserved region, the
// backup copy at backup-boot-sector+1.
func (sb *Superblock) persistFSInfo() *errors.DriverError {
	image := encodeFSInfo(*sb.FSInfo)

	if err := sb.Device.WriteSectors(uint64(sb.Geometry.FSInfoSector), 1, image); err != nil {
		return err
	}

	backupSector := sb.Geometry.BackupBootSector + 1
	if uint(backupSector) < sb.Geometry.ReservedSectors {
		if err := sb.Device.WriteSectors(uint64(backupSector), 1, image); err != nil {
			sb.noteCorruption("failed to mirror FSInfo to backup sector: " + err.Error())
		}
	} else {
		sb.noteCorruption("backup FSInfo sector lies outside the reserved region; skipping mirror")
	}
	return nil
}

// recomputeFSInfo rescans the FAT and overwrites the in-memory FSInfo
// snapshot's free-cluster count and next-free hint.
func (sb *Superblock) recomputeFSInfo() *errors.DriverError {
	free, err := sb.Cluster.CountFreeClusters()
	if err != nil {
		return err
	}
	sb.FSInfo.FreeClusters = free
	if sb.FSInfo.NextFree == FSInfoUnknown || uint(sb.FSInfo.NextFree) >= sb.Geometry.TotalClusters+2 {
		sb.FSInfo.NextFree = 2
	}
	return sb.persistFSInfo()
}
