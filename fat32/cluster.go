package fat32

import (
	"github.com/boljen/go-bitmap"

	"github.com/tverdal/gofat32/blockdev"
	"github.com/tverdal/gofat32/errors"
)

// ClusterLayer implements allocation, freeing, length-counting, extension,
// and validated traversal of cluster chains (spec.md §4.5). It updates the
// FSInfo free-space snapshot on every allocation and free; the superblock's
// recomputeFSInfo and Unmount also rewrite it from a full FAT scan.
type ClusterLayer struct {
	fat    *FATCache
	dev    blockdev.Device
	geom   Geometry
	fsinfo *FSInfo

	// occupancy mirrors "is this cluster FREE" for every data cluster, 1
	// bit each. It is rebuilt from the FAT at mount and kept in sync on
	// every Allocate/Free, but the FAT remains the sole source of truth:
	// this bitmap only lets Allocate skip a FAT read for clusters already
	// known to be occupied (spec.md §4.5 enrichment).
	occupancy bitmap.Bitmap

	persistFSInfo func() *errors.DriverError
	onCorruption  func(reason string)
}

// NewClusterLayer creates a cluster layer. RebuildOccupancy should be
// called once after construction, during mount, once the FAT is readable.
func NewClusterLayer(
	fat *FATCache,
	dev blockdev.Device,
	geom Geometry,
	fsinfo *FSInfo,
	persistFSInfo func() *errors.DriverError,
	onCorruption func(reason string),
) *ClusterLayer {
	return &ClusterLayer{
		fat:           fat,
		dev:           dev,
		geom:          geom,
		fsinfo:        fsinfo,
		occupancy:     bitmap.New(int(geom.TotalClusters)),
		persistFSInfo: persistFSInfo,
		onCorruption:  onCorruption,
	}
}

func (cl *ClusterLayer) occupancyIndex(c ClusterID) int {
	return int(c) - 2
}

func (cl *ClusterLayer) markOccupied(c ClusterID) {
	cl.occupancy.Set(cl.occupancyIndex(c), true)
}

func (cl *ClusterLayer) markFree(c ClusterID) {
	cl.occupancy.Set(cl.occupancyIndex(c), false)
}

// RebuildOccupancy rescans the entire FAT and rebuilds the in-memory
// occupancy bitmap from scratch. Called once at mount, after any repair
// pass that may have changed cluster states.
func (cl *ClusterLayer) RebuildOccupancy() *errors.DriverError {
	for c := ClusterID(2); uint(c) < cl.geom.TotalClusters+2; c++ {
		val, err := cl.fat.Get(c)
		if err != nil {
			return err
		}
		cl.occupancy.Set(cl.occupancyIndex(c), val != ClusterFree)
	}
	return nil
}

// CountFreeClusters scans the FAT directly and returns the number of FREE
// entries. Used to recompute FSInfo when its free-cluster count is unknown
// or stale, per spec.md §4.9.
func (cl *ClusterLayer) CountFreeClusters() (uint32, *errors.DriverError) {
	var free uint32
	for c := ClusterID(2); uint(c) < cl.geom.TotalClusters+2; c++ {
		val, err := cl.fat.Get(c)
		if err != nil {
			return 0, err
		}
		if val == ClusterFree {
			free++
		}
	}
	return free, nil
}

// Allocate finds the first free cluster starting from the FSInfo next-free
// hint (wrapping around, and resetting to 2 if the hint is out of range),
// marks it end-of-chain, and updates FSInfo. Newly allocated clusters are
// not zeroed; callers that need zero contents must call zeroCluster
// themselves.
func (cl *ClusterLayer) Allocate() (ClusterID, *errors.DriverError) {
	start := ClusterID(cl.fsinfo.NextFree)
	if start < 2 || uint(start) >= cl.geom.TotalClusters+2 {
		start = 2
	}

	cur := start
	for i := uint(0); i < cl.geom.TotalClusters; i++ {
		candidate := cur

		cur++
		if uint(cur) >= cl.geom.TotalClusters+2 {
			cur = 2
		}

		if cl.occupancy.Get(cl.occupancyIndex(candidate)) {
			continue
		}

		val, err := cl.fat.Get(candidate)
		if err != nil {
			return 0, err
		}
		if val != ClusterFree {
			cl.occupancy.Set(cl.occupancyIndex(candidate), true)
			continue
		}

		if err := cl.fat.Set(candidate, ClusterEOC); err != nil {
			return 0, err
		}
		if err := cl.fat.Flush(); err != nil {
			_ = cl.fat.Set(candidate, ClusterFree)
			_ = cl.fat.Flush()
			return 0, err
		}

		cl.markOccupied(candidate)
		if cl.fsinfo.FreeClusters != FSInfoUnknown && cl.fsinfo.FreeClusters > 0 {
			cl.fsinfo.FreeClusters--
		}
		next := uint32(candidate) + 1
		if uint(next) >= cl.geom.TotalClusters+2 {
			next = 2
		}
		cl.fsinfo.NextFree = next

		if err := cl.persistFSInfo(); err != nil {
			return candidate, err
		}
		return candidate, nil
	}

	return 0, errors.New(errors.KindNoSpace)
}

// FreeChain walks from start following FAT links, marking each visited
// cluster FREE, until it reaches end-of-chain. An invalid forward link
// aborts the walk with a Corrupt error without freeing the offending
// cluster.
func (cl *ClusterLayer) FreeChain(start ClusterID) *errors.DriverError {
	cur := start
	var freed uint32
	var firstFreed ClusterID

	for i := uint(0); i < MaxChainWalk; i++ {
		if IsEndOfChain(cur) {
			break
		}
		if !IsDataCluster(cur, cl.geom.TotalClusters) {
			return errors.Newf(errors.KindCorrupt, "invalid cluster %d encountered while freeing chain", cur)
		}

		next, err := cl.fat.Get(cur)
		if err != nil {
			return err
		}
		if !IsValidForwardLink(next, cl.geom.TotalClusters) {
			return errors.Newf(errors.KindCorrupt, "cluster %d has invalid forward link 0x%X", cur, next)
		}

		if err := cl.fat.Set(cur, ClusterFree); err != nil {
			return err
		}
		cl.markFree(cur)
		if firstFreed == 0 {
			firstFreed = cur
		}
		freed++
		cur = next
	}

	if err := cl.fat.Flush(); err != nil {
		return err
	}

	if cl.fsinfo.FreeClusters != FSInfoUnknown {
		cl.fsinfo.FreeClusters += freed
	}
	if firstFreed != 0 && (cl.fsinfo.NextFree == FSInfoUnknown || uint32(firstFreed) < cl.fsinfo.NextFree) {
		cl.fsinfo.NextFree = uint32(firstFreed)
	}
	return cl.persistFSInfo()
}

// CountChainLength walks the chain from start and returns the number of
// clusters in it, capped at MaxChainWalk.
func (cl *ClusterLayer) CountChainLength(start ClusterID) (uint, *errors.DriverError) {
	cur := start
	var count uint

	for count < MaxChainWalk {
		if IsEndOfChain(cur) {
			return count, nil
		}
		if !IsDataCluster(cur, cl.geom.TotalClusters) {
			return count, errors.Newf(errors.KindCorrupt, "invalid cluster %d at position %d", cur, count)
		}
		next, err := cl.fat.Get(cur)
		if err != nil {
			return count, err
		}
		count++
		cur = next
	}
	return count, errors.Newf(errors.KindCorrupt, "chain from %d exceeds %d clusters (possible cycle)", start, MaxChainWalk)
}

// ValidateChain is CountChainLength plus active cycle detection: every
// 1024 steps it re-walks from head looking for the current cursor. Any
// re-encounter is reported as a cycle.
func (cl *ClusterLayer) ValidateChain(start ClusterID) (uint, *errors.DriverError) {
	cur := start
	var count uint

	for count < MaxChainWalk {
		if IsEndOfChain(cur) {
			return count, nil
		}
		if !IsDataCluster(cur, cl.geom.TotalClusters) {
			return count, errors.Newf(errors.KindCorrupt, "invalid cluster %d at position %d", cur, count)
		}
		if count > 0 && count%1024 == 0 {
			if cl.reencountersCursor(start, cur, count) {
				return count, errors.Newf(errors.KindCorrupt, "cycle detected in chain starting at %d", start)
			}
		}

		next, err := cl.fat.Get(cur)
		if err != nil {
			return count, err
		}
		count++
		cur = next
	}
	return count, errors.Newf(errors.KindCorrupt, "chain from %d exceeds %d clusters (possible cycle)", start, MaxChainWalk)
}

// reencountersCursor re-walks the first `steps` positions (0 through
// steps-1) of the chain from `start`, returning true if `target`, the
// cluster at position `steps`, already appears among them.
func (cl *ClusterLayer) reencountersCursor(start, target ClusterID, steps uint) bool {
	walker := start
	for i := uint(0); i < steps; i++ {
		if walker == target {
			return true
		}
		next, err := cl.fat.Get(walker)
		if err != nil || IsEndOfChain(walker) {
			return false
		}
		walker = next
	}
	return false
}

func (cl *ClusterLayer) findTail(start ClusterID) (ClusterID, *errors.DriverError) {
	cur := start
	for i := uint(0); i < MaxChainWalk; i++ {
		next, err := cl.fat.Get(cur)
		if err != nil {
			return 0, err
		}
		if IsEndOfChain(next) {
			return cur, nil
		}
		if !IsDataCluster(next, cl.geom.TotalClusters) {
			return 0, errors.Newf(errors.KindCorrupt, "invalid cluster 0x%X following %d", next, cur)
		}
		cur = next
	}
	return 0, errors.Newf(errors.KindCorrupt, "chain from %d exceeds %d clusters (possible cycle)", start, MaxChainWalk)
}

// ExtendChain appends `count` newly allocated, zero-filled clusters to the
// end of the chain starting at `start`. If allocation fails partway, the
// partial extension already linked is left intact; the number of clusters
// actually added is returned alongside the error.
func (cl *ClusterLayer) ExtendChain(start ClusterID, count uint) (uint, *errors.DriverError) {
	tail, err := cl.findTail(start)
	if err != nil {
		return 0, err
	}

	var added uint
	var sinceFlush uint
	for i := uint(0); i < count; i++ {
		newCluster, err := cl.Allocate()
		if err != nil {
			return added, err
		}
		if err := zeroCluster(cl.dev, cl.geom, newCluster); err != nil {
			return added, err
		}
		if err := cl.fat.Set(tail, newCluster); err != nil {
			return added, err
		}
		if err := cl.fat.Set(newCluster, ClusterEOC); err != nil {
			return added, err
		}

		tail = newCluster
		added++
		sinceFlush++
		if sinceFlush >= 8 {
			if err := cl.fat.Flush(); err != nil {
				return added, err
			}
			sinceFlush = 0
		}
	}

	if err := cl.fat.Flush(); err != nil {
		return added, err
	}
	return added, nil
}

// Walk visits every cluster in the chain starting at `start`, in order,
// calling visit for each one. It stops early if visit returns stop=true or
// an error, and fails with Corrupt if it encounters an invalid forward
// link or exceeds MaxChainWalk steps.
func (cl *ClusterLayer) Walk(start ClusterID, visit func(cluster ClusterID) (stop bool, err *errors.DriverError)) *errors.DriverError {
	cur := start
	for i := uint(0); i < MaxChainWalk; i++ {
		if IsEndOfChain(cur) {
			return nil
		}
		if !IsDataCluster(cur, cl.geom.TotalClusters) {
			return errors.Newf(errors.KindCorrupt, "invalid cluster %d encountered while walking chain", cur)
		}

		stop, err := visit(cur)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}

		next, err := cl.fat.Get(cur)
		if err != nil {
			return err
		}
		if !IsValidForwardLink(next, cl.geom.TotalClusters) {
			return errors.Newf(errors.KindCorrupt, "cluster %d has invalid forward link 0x%X", cur, next)
		}
		cur = next
	}
	return errors.Newf(errors.KindCorrupt, "chain from %d exceeds %d clusters (possible cycle)", start, MaxChainWalk)
}
