package fat32

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterToSectorMapsDataStart(t *testing.T) {
	_, geom := buildTestVolume(t, defaultTestVolumeParams())

	sector, err := clusterToSector(geom, 2)
	require.Nil(t, err)
	assert.Equal(t, geom.DataStart, sector)

	sector, err = clusterToSector(geom, 3)
	require.Nil(t, err)
	assert.Equal(t, geom.DataStart+SectorID(geom.SectorsPerCluster), sector)
}

func TestClusterToSectorRejectsOutOfRange(t *testing.T) {
	_, geom := buildTestVolume(t, defaultTestVolumeParams())

	_, err := clusterToSector(geom, 0)
	assert.NotNil(t, err)

	_, err = clusterToSector(geom, ClusterID(geom.TotalClusters+100))
	assert.NotNil(t, err)
}

func TestWriteClusterThenReadClusterRoundTrip(t *testing.T) {
	dev, geom := buildTestVolume(t, defaultTestVolumeParams())

	data := bytes.Repeat([]byte{0x7A}, int(geom.ClusterSize))
	require.Nil(t, writeCluster(dev, geom, 2, data))

	read, err := readCluster(dev, geom, 2)
	require.Nil(t, err)
	assert.Equal(t, data, read)
}

func TestWriteClusterRejectsWrongSize(t *testing.T) {
	dev, geom := buildTestVolume(t, defaultTestVolumeParams())
	err := writeCluster(dev, geom, 2, make([]byte, 10))
	assert.NotNil(t, err)
}

func TestZeroClusterClearsContents(t *testing.T) {
	dev, geom := buildTestVolume(t, defaultTestVolumeParams())

	require.Nil(t, writeCluster(dev, geom, 3, bytes.Repeat([]byte{0xFF}, int(geom.ClusterSize))))
	require.Nil(t, zeroCluster(dev, geom, 3))

	read, err := readCluster(dev, geom, 3)
	require.Nil(t, err)
	assert.Equal(t, make([]byte, geom.ClusterSize), read)
}
