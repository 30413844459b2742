package fat32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBootSectorRoundTrip(t *testing.T) {
	_, geom := buildTestVolume(t, defaultTestVolumeParams())

	encoded := encodeBootSector(geom, "ROUNDTRIP")
	parsed, err := parseBootSector(encoded)
	require.Nil(t, err)

	assert.Equal(t, geom.SectorsPerCluster, parsed.SectorsPerCluster)
	assert.Equal(t, geom.ReservedSectors, parsed.ReservedSectors)
	assert.Equal(t, geom.NumFATs, parsed.NumFATs)
	assert.Equal(t, geom.SectorsPerFAT, parsed.SectorsPerFAT)
	assert.Equal(t, geom.RootCluster, parsed.RootCluster)
	assert.Equal(t, geom.FATStart, parsed.FATStart)
	assert.Equal(t, geom.DataStart, parsed.DataStart)
	assert.Equal(t, geom.ClusterSize, parsed.ClusterSize)
	assert.Equal(t, geom.TotalClusters, parsed.TotalClusters)
}

func TestParseBootSectorRejectsWrongLength(t *testing.T) {
	_, err := parseBootSector(make([]byte, 100))
	assert.NotNil(t, err)
}

func TestParseBootSectorRejectsBadSignature(t *testing.T) {
	_, geom := buildTestVolume(t, defaultTestVolumeParams())
	encoded := encodeBootSector(geom, "BAD")
	encoded[510] = 0
	encoded[511] = 0

	_, err := parseBootSector(encoded)
	assert.NotNil(t, err)
}

func TestParseBootSectorRejectsNonFAT32RootEntryCount(t *testing.T) {
	_, geom := buildTestVolume(t, defaultTestVolumeParams())
	encoded := encodeBootSector(geom, "BAD")
	encoded[17] = 1 // RootEntryCount low byte

	_, err := parseBootSector(encoded)
	assert.NotNil(t, err)
}

func TestParseBootSectorRejectsTooFewClusters(t *testing.T) {
	_, geom := buildTestVolume(t, defaultTestVolumeParams())
	geom.TotalSectors = uint64(geom.DataStart) + 100
	encoded := encodeBootSector(geom, "TINY")

	_, err := parseBootSector(encoded)
	assert.NotNil(t, err)
}

func TestParseBootSectorDefaultsFSInfoAndBackupSectors(t *testing.T) {
	_, geom := buildTestVolume(t, defaultTestVolumeParams())
	geom.FSInfoSector = 0
	geom.BackupBootSector = 0
	encoded := encodeBootSector(geom, "DEFAULTS")

	parsed, err := parseBootSector(encoded)
	require.Nil(t, err)
	assert.Equal(t, SectorID(1), parsed.FSInfoSector)
	assert.Equal(t, SectorID(6), parsed.BackupBootSector)
}
