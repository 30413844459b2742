package fat32

import (
	"github.com/tverdal/gofat32/blockdev"
	"github.com/tverdal/gofat32/errors"
)

// FileEngine implements positional, cluster-chain-backed read/write over a
// file's data, per spec.md §4.8. It does not know about directory entries;
// callers own first-cluster allocation bookkeeping via UpdateEntry.
type FileEngine struct {
	dev     blockdev.Device
	geom    Geometry
	cluster *ClusterLayer
}

// NewFileEngine creates a file engine sharing the given cluster layer with
// the rest of the mounted volume.
func NewFileEngine(dev blockdev.Device, geom Geometry, cluster *ClusterLayer) *FileEngine {
	return &FileEngine{dev: dev, geom: geom, cluster: cluster}
}

// clusterAndOffsetForPosition returns the cluster holding byte offset
// `pos` within a chain starting at firstCluster, along with the byte
// offset within that cluster. It walks the chain from the head every
// call, since FAT32 offers no faster way to seek without a side index.
func (fe *FileEngine) clusterAndOffsetForPosition(firstCluster ClusterID, pos uint64) (ClusterID, uint, *errors.DriverError) {
	clusterSize := uint64(fe.geom.ClusterSize)
	target := pos / clusterSize
	withinCluster := uint(pos % clusterSize)

	cur := firstCluster
	for i := uint64(0); i < target; i++ {
		if IsEndOfChain(cur) {
			return 0, 0, errors.Newf(errors.KindInvalid, "position %d beyond end of chain", pos)
		}
		next, err := fe.cluster.fat.Get(cur)
		if err != nil {
			return 0, 0, err
		}
		if !IsValidForwardLink(next, fe.geom.TotalClusters) {
			return 0, 0, errors.Newf(errors.KindCorrupt, "cluster %d has invalid forward link 0x%X", cur, next)
		}
		cur = next
	}
	if IsEndOfChain(cur) {
		return 0, 0, errors.Newf(errors.KindInvalid, "position %d beyond end of chain", pos)
	}
	return cur, withinCluster, nil
}

// Read fills buf starting at byte offset pos in the file's data, reading
// at most len(buf) bytes or until size is exhausted, whichever comes
// first. It returns the number of bytes actually read.
func (fe *FileEngine) Read(firstCluster ClusterID, size uint64, pos uint64, buf []byte) (int, *errors.DriverError) {
	if pos >= size || len(buf) == 0 {
		return 0, nil
	}
	if firstCluster < 2 {
		return 0, nil
	}

	remaining := size - pos
	want := uint64(len(buf))
	if want > remaining {
		want = remaining
	}

	var read uint64
	clusterSize := uint64(fe.geom.ClusterSize)
	for read < want {
		cur, offset, err := fe.clusterAndOffsetForPosition(firstCluster, pos+read)
		if err != nil {
			return int(read), err
		}

		data, err := readCluster(fe.dev, fe.geom, cur)
		if err != nil {
			return int(read), err
		}

		chunk := clusterSize - uint64(offset)
		left := want - read
		if chunk > left {
			chunk = left
		}
		copy(buf[read:read+chunk], data[offset:uint64(offset)+chunk])
		read += chunk
	}
	return int(read), nil
}

// Write stores data at byte offset pos in the file's chain, extending the
// chain as needed. It returns the (possibly updated) first cluster, the
// file's size (grown if the write ended past its previous extent), and the
// number of bytes written, in that order. The caller is responsible for persisting the returned
// first cluster and size into the directory entry via
// DirectoryEngine.UpdateEntry. A single call writes at most MaxWriteSize
// bytes; callers must chunk larger writes themselves.
func (fe *FileEngine) Write(firstCluster ClusterID, size uint64, pos uint64, data []byte) (ClusterID, uint64, int, *errors.DriverError) {
	if len(data) > MaxWriteSize {
		return firstCluster, size, 0, errors.Newf(errors.KindInvalid, "write of %d bytes exceeds MaxWriteSize %d", len(data), MaxWriteSize)
	}
	if len(data) == 0 {
		return firstCluster, size, 0, nil
	}

	clusterSize := uint64(fe.geom.ClusterSize)
	endPos := pos + uint64(len(data))

	if firstCluster < 2 {
		newCluster, err := fe.cluster.Allocate()
		if err != nil {
			return firstCluster, size, 0, err
		}
		if err := zeroCluster(fe.dev, fe.geom, newCluster); err != nil {
			return firstCluster, size, 0, err
		}
		firstCluster = newCluster
	}

	clustersNeeded := uint((endPos + clusterSize - 1) / clusterSize)
	have, err := fe.cluster.CountChainLength(firstCluster)
	if err != nil {
		return firstCluster, size, 0, err
	}
	if clustersNeeded > have {
		if _, err := fe.cluster.ExtendChain(firstCluster, clustersNeeded-have); err != nil {
			return firstCluster, size, 0, err
		}
	}

	var written uint64
	for written < uint64(len(data)) {
		cur, offset, err := fe.clusterAndOffsetForPosition(firstCluster, pos+written)
		if err != nil {
			return firstCluster, size, int(written), err
		}

		buf, err := readCluster(fe.dev, fe.geom, cur)
		if err != nil {
			return firstCluster, size, int(written), err
		}

		chunk := clusterSize - uint64(offset)
		left := uint64(len(data)) - written
		if chunk > left {
			chunk = left
		}
		copy(buf[offset:uint64(offset)+chunk], data[written:written+chunk])

		if err := writeCluster(fe.dev, fe.geom, cur, buf); err != nil {
			return firstCluster, size, int(written), err
		}
		written += chunk
	}

	newSize := size
	if endPos > newSize {
		newSize = endPos
	}
	return firstCluster, newSize, int(written), nil
}

// Truncate frees every cluster in the chain past the one holding the last
// byte of newSize, returning the (possibly zeroed) first cluster. A
// newSize of 0 frees the entire chain and returns first cluster 0.
func (fe *FileEngine) Truncate(firstCluster ClusterID, newSize uint64) (ClusterID, *errors.DriverError) {
	if firstCluster < 2 {
		return 0, nil
	}
	if newSize == 0 {
		if err := fe.cluster.FreeChain(firstCluster); err != nil {
			return firstCluster, err
		}
		return 0, nil
	}

	clusterSize := uint64(fe.geom.ClusterSize)
	keep := uint((newSize + clusterSize - 1) / clusterSize)

	cur := firstCluster
	for i := uint(1); i < keep; i++ {
		next, err := fe.cluster.fat.Get(cur)
		if err != nil {
			return firstCluster, err
		}
		if !IsDataCluster(next, fe.geom.TotalClusters) {
			return firstCluster, errors.Newf(errors.KindCorrupt, "chain shorter than expected while truncating")
		}
		cur = next
	}

	tail, err := fe.cluster.fat.Get(cur)
	if err != nil {
		return firstCluster, err
	}
	if IsEndOfChain(tail) {
		return firstCluster, nil
	}

	if err := fe.cluster.fat.Set(cur, ClusterEOC); err != nil {
		return firstCluster, err
	}
	if err := fe.cluster.fat.Flush(); err != nil {
		return firstCluster, err
	}
	if err := fe.cluster.FreeChain(tail); err != nil {
		return firstCluster, err
	}
	return firstCluster, nil
}
