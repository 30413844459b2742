package fat32

import (
	"github.com/tverdal/gofat32/blockdev"
	"github.com/tverdal/gofat32/errors"
)

// clusterToSector maps a cluster number to its first absolute sector, per
// spec.md §4.6: data-start + (c-2) * sectors-per-cluster. Valid only for
// c in [2, totalClusters+2).
func clusterToSector(geom Geometry, c ClusterID) (SectorID, *errors.DriverError) {
	if !IsDataCluster(c, geom.TotalClusters) {
		return 0, errors.Newf(errors.KindInvalid, "cluster %d out of data range [2, %d)", c, geom.TotalClusters+2)
	}
	return geom.DataStart + SectorID(uint64(c-2)*uint64(geom.SectorsPerCluster)), nil
}

// readCluster reads the full contents of cluster c, sectors-per-cluster
// sectors in a single block-I/O call.
func readCluster(dev blockdev.Device, geom Geometry, c ClusterID) ([]byte, *errors.DriverError) {
	sector, err := clusterToSector(geom, c)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, geom.ClusterSize)
	if err := dev.ReadSectors(uint64(sector), uint32(geom.SectorsPerCluster), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// writeCluster writes data (exactly one cluster's worth of bytes) to
// cluster c in a single block-I/O call.
func writeCluster(dev blockdev.Device, geom Geometry, c ClusterID, data []byte) *errors.DriverError {
	if uint(len(data)) != geom.ClusterSize {
		return errors.Newf(errors.KindInvalid, "cluster write must be %d bytes, got %d", geom.ClusterSize, len(data))
	}
	sector, err := clusterToSector(geom, c)
	if err != nil {
		return err
	}
	return dev.WriteSectors(uint64(sector), uint32(geom.SectorsPerCluster), data)
}

// zeroCluster writes a cluster's worth of zero bytes to cluster c.
func zeroCluster(dev blockdev.Device, geom Geometry, c ClusterID) *errors.DriverError {
	return writeCluster(dev, geom, c, make([]byte, geom.ClusterSize))
}
