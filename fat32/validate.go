package fat32

import (
	"encoding/binary"
	"fmt"

	"github.com/tverdal/gofat32/errors"
)

// validator runs the three mount-time passes of the consistency sweep
// described in spec.md §4.9, converging a volume's on-disk structures to something subsequent
// operations can trust.
type validator struct {
	sb          *Superblock
	corrections int
}

// runValidator executes the structural-repair passes (FAT sweep,
// directory-tree repair, FSInfo reconciliation) against sb. It returns an
// error only when a repair attempt itself fails (device I/O); corruption
// found and successfully repaired is reported through
// sb.Warnings/HasErrors, not as a returned error.
//
// The fourth pass from spec.md §4.9 — setting FAT[1]'s clean-shutdown bit
// — is deliberately not run here. Clearing that bit at mount and not
// restoring it until Unmount is what makes it useful: a volume that finds
// the bit already clear at next mount genuinely wasn't unmounted cleanly.
// Unmount performs pass 4's effect itself.
func runValidator(sb *Superblock) *errors.DriverError {
	v := &validator{sb: sb}

	if err := v.passOneScanFAT(); err != nil {
		return err
	}
	if err := v.passTwoRepairDirectoryTree(); err != nil {
		return err
	}
	if err := v.passThreeReconcileFSInfo(); err != nil {
		return err
	}
	return nil
}

// passOneScanFAT rewrites any FAT entry that is neither a sentinel nor a
// valid in-range forward link to FREE.
func (v *validator) passOneScanFAT() *errors.DriverError {
	geom := v.sb.Geometry
	invalid := 0

	for c := ClusterID(2); uint(c) < geom.TotalClusters+2; c++ {
		val, err := v.sb.FAT.Get(c)
		if err != nil {
			return err
		}
		if val == ClusterFree || val == ClusterBad || IsEndOfChain(val) {
			continue
		}
		if IsDataCluster(val, geom.TotalClusters) {
			continue
		}

		if err := v.sb.FAT.Set(c, ClusterFree); err != nil {
			return err
		}
		invalid++
	}

	if invalid > 0 {
		if err := v.sb.FAT.Flush(); err != nil {
			return err
		}
		v.corrections += invalid
		v.sb.noteCorruption(fmt.Sprintf("pass 1: rewrote %d out-of-range FAT entries to FREE", invalid))
	}
	return nil
}

// repairChain walks from start until it finds the first invalid forward
// link or a re-visited cluster (a cycle), and cuts the chain there by
// writing EOC at the last good cluster. An out-of-range or BAD link
// doesn't address a real cluster, and a re-visited cluster is already
// part of the retained prefix, so in neither case is there a distinct
// "garbage" cluster left to free. It returns the number of clusters
// retained.
func (v *validator) repairChain(start ClusterID) (uint, *errors.DriverError) {
	geom := v.sb.Geometry
	seen := make(map[ClusterID]bool, 64)

	cur := start
	var prev ClusterID
	var count uint

	for count < MaxChainWalk {
		if IsEndOfChain(cur) {
			return count, nil
		}
		if !IsDataCluster(cur, geom.TotalClusters) || seen[cur] {
			break
		}
		seen[cur] = true

		next, err := v.sb.FAT.Get(cur)
		if err != nil {
			return count, err
		}
		prev = cur
		cur = next
		count++
	}

	if prev == 0 {
		return 0, nil
	}

	if err := v.sb.FAT.Set(prev, ClusterEOC); err != nil {
		return count, err
	}
	if err := v.sb.FAT.Flush(); err != nil {
		return count, err
	}
	return count, nil
}

// passTwoRepairDirectoryTree walks the root directory chain and, for each
// live entry with a cluster chain, heals FAT/chain inconsistencies per
// spec.md §4.9's Pass 2 rules.
func (v *validator) passTwoRepairDirectoryTree() *errors.DriverError {
	geom := v.sb.Geometry

	return v.sb.DirEngine.forEachSlot(geom.RootCluster, func(loc direntLocation, kind direntKind, raw rawDirent) (bool, *errors.DriverError) {
		if kind != direntLive {
			return false, nil
		}
		cluster := firstClusterOf(raw.FirstClusterHigh, raw.FirstClusterLow)
		if cluster < 2 {
			return false, nil
		}
		if !IsDataCluster(cluster, geom.TotalClusters) {
			if err := v.truncateEntry(loc); err != nil {
				return false, err
			}
			v.corrections++
			v.sb.noteCorruption(fmt.Sprintf("pass 2: entry's first cluster %d is out of range; truncated entry to empty", cluster))
			return false, nil
		}

		fatVal, err := v.sb.FAT.Get(cluster)
		if err != nil {
			return false, err
		}

		if fatVal == ClusterFree {
			data, readErr := readCluster(v.sb.Device, geom, cluster)
			if readErr != nil {
				if err := v.truncateEntry(loc); err != nil {
					return false, err
				}
				v.corrections++
				v.sb.noteCorruption(fmt.Sprintf("pass 2: cluster %d for an entry was FREE and unreadable; truncated entry to empty", cluster))
				return false, nil
			}

			replacement, allocErr := v.sb.Cluster.Allocate()
			if allocErr != nil {
				if err := v.truncateEntry(loc); err != nil {
					return false, err
				}
				v.corrections++
				v.sb.noteCorruption(fmt.Sprintf("pass 2: cluster %d for an entry was FREE; no replacement cluster available, truncated entry", cluster))
				return false, nil
			}
			if err := writeCluster(v.sb.Device, geom, replacement, data); err != nil {
				return false, err
			}
			if err := v.sb.FAT.Set(replacement, ClusterEOC); err != nil {
				return false, err
			}
			if err := v.sb.FAT.Flush(); err != nil {
				return false, err
			}
			if err := v.relocateEntry(loc, replacement); err != nil {
				return false, err
			}
			v.corrections++
			v.sb.noteCorruption(fmt.Sprintf("pass 2: cluster %d for an entry was FREE; replaced with cluster %d and copied its data", cluster, replacement))
			return false, nil
		}

		length, validateErr := v.sb.Cluster.ValidateChain(cluster)
		if validateErr != nil {
			repaired, err := v.repairChain(cluster)
			if err != nil {
				return false, err
			}
			v.corrections++
			v.sb.noteCorruption(fmt.Sprintf("pass 2: chain starting at cluster %d was invalid; truncated to %d clusters", cluster, repaired))
			length = repaired

			if length == 0 {
				if err := v.truncateEntry(loc); err != nil {
					return false, err
				}
				return false, nil
			}
		}

		declaredClusters := uint((uint64(raw.FileSize) + uint64(geom.ClusterSize) - 1) / uint64(geom.ClusterSize))
		if declaredClusters > length {
			shortfall := declaredClusters - length
			added, extendErr := v.sb.Cluster.ExtendChain(cluster, shortfall)
			if extendErr != nil || added < shortfall {
				v.sb.noteCorruption(fmt.Sprintf("pass 2: could not extend chain at cluster %d to match declared size; size left unchanged", cluster))
			}
		}
		return false, nil
	})
}

func (v *validator) truncateEntry(loc direntLocation) *errors.DriverError {
	return v.sb.Dir.PatchSector(loc.sector, func(buf []byte) {
		off := loc.offset
		binary.LittleEndian.PutUint16(buf[off+offsetFirstClusterHigh:off+offsetFirstClusterHigh+2], 0)
		binary.LittleEndian.PutUint16(buf[off+offsetFirstClusterLow:off+offsetFirstClusterLow+2], 0)
		binary.LittleEndian.PutUint32(buf[off+offsetFileSize:off+offsetFileSize+4], 0)
	})
}

func (v *validator) relocateEntry(loc direntLocation, newCluster ClusterID) *errors.DriverError {
	high, low := splitCluster(newCluster)
	return v.sb.Dir.PatchSector(loc.sector, func(buf []byte) {
		off := loc.offset
		binary.LittleEndian.PutUint16(buf[off+offsetFirstClusterHigh:off+offsetFirstClusterHigh+2], high)
		binary.LittleEndian.PutUint16(buf[off+offsetFirstClusterLow:off+offsetFirstClusterLow+2], low)
	})
}

// passThreeReconcileFSInfo recomputes and persists the free-cluster count
// and next-free hint if pass 1 or 2 made any corrections, or if FSInfo was
// marked unknown.
func (v *validator) passThreeReconcileFSInfo() *errors.DriverError {
	unknown := v.sb.FSInfo.FreeClusters == FSInfoUnknown || v.sb.FSInfo.NextFree == FSInfoUnknown
	if v.corrections == 0 && !unknown {
		return nil
	}
	return v.sb.recomputeFSInfo()
}
