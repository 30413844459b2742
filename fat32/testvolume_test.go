package fat32

import (
	"encoding/binary"
	"testing"

	"github.com/tverdal/gofat32/diskutil"
	"github.com/tverdal/gofat32/geometry"
)

// testVolumeParams are the parameters for a small, but spec-legal, FAT32
// volume built entirely in memory for use across this package's tests.
type testVolumeParams struct {
	sectorsPerCluster uint
	totalClusters     uint
	numFATs           uint
	reservedSectors   uint
}

// defaultTestVolumeParams builds a fixture sized to the "260 MiB - 8 GiB"
// geometry preset, taking its sectors-per-cluster and reserved-sector
// count straight from the embedded table instead of inventing them.
// totalClusters is chosen so the resulting volume's total sector count
// actually falls inside that preset's advertised range.
func defaultTestVolumeParams() testVolumeParams {
	profile, ok := geometry.BySlug("fat32-260m-8g")
	if !ok {
		panic("testvolume: fat32-260m-8g profile missing from embedded geometry table")
	}
	return testVolumeParams{
		sectorsPerCluster: profile.SectorsPerCluster,
		totalClusters:     70000,
		numFATs:           2,
		reservedSectors:   profile.ReservedSectors,
	}
}

// buildTestVolume constructs a minimal, mountable FAT32 image in memory:
// boot sector, FSInfo (+ backup), a zeroed FAT with entries 0/1 reserved
// and the root directory's cluster marked EOC, and a zeroed root
// directory cluster. It returns the backing device and the geometry that
// parsing that boot sector would produce.
func buildTestVolume(t *testing.T, p testVolumeParams) (*diskutil.MemDevice, Geometry) {
	t.Helper()

	fatEntries := uint64(p.totalClusters) + 2
	sectorsPerFAT := uint((fatEntries*4 + 511) / 512)
	dataStart := p.reservedSectors + p.numFATs*sectorsPerFAT
	totalSectors := uint64(dataStart) + uint64(p.totalClusters)*uint64(p.sectorsPerCluster)

	rootCluster := ClusterID(2)

	geom := Geometry{
		BytesPerSector:    512,
		SectorsPerCluster: p.sectorsPerCluster,
		ReservedSectors:   p.reservedSectors,
		NumFATs:           p.numFATs,
		SectorsPerFAT:     sectorsPerFAT,
		RootCluster:       rootCluster,
		FSInfoSector:      1,
		BackupBootSector:  6,
		TotalSectors:      totalSectors,
		FATStart:          SectorID(p.reservedSectors),
		DataStart:         SectorID(dataStart),
		ClusterSize:       p.sectorsPerCluster * 512,
		TotalClusters:     p.totalClusters,
	}

	dev := diskutil.NewMemDevice(uint(totalSectors))

	boot := encodeBootSector(geom, "TESTVOL")
	if err := dev.WriteSectors(0, 1, boot); err != nil {
		t.Fatalf("writing boot sector: %v", err)
	}
	if err := dev.WriteSectors(uint64(geom.BackupBootSector), 1, boot); err != nil {
		t.Fatalf("writing backup boot sector: %v", err)
	}

	fsinfo := encodeFSInfo(FSInfo{FreeClusters: p.totalClusters - 1, NextFree: 3})
	if err := dev.WriteSectors(uint64(geom.FSInfoSector), 1, fsinfo); err != nil {
		t.Fatalf("writing FSInfo: %v", err)
	}
	if err := dev.WriteSectors(uint64(geom.BackupBootSector)+1, 1, fsinfo); err != nil {
		t.Fatalf("writing backup FSInfo: %v", err)
	}

	fatSector0 := make([]byte, 512)
	binary.LittleEndian.PutUint32(fatSector0[0:4], 0x0FFFFFF8)  // FAT[0]
	binary.LittleEndian.PutUint32(fatSector0[4:8], 0x0FFFFFFF)  // FAT[1], clean+no-errors
	binary.LittleEndian.PutUint32(fatSector0[8:12], 0x0FFFFFF8) // FAT[2] (root), EOC
	for k := uint(0); k < p.numFATs; k++ {
		sector := geom.FATStart + SectorID(k*sectorsPerFAT)
		if err := dev.WriteSectors(uint64(sector), 1, fatSector0); err != nil {
			t.Fatalf("writing FAT copy %d: %v", k, err)
		}
	}

	return dev, geom
}

func mustMount(t *testing.T, dev *diskutil.MemDevice) (*Superblock, *Node) {
	t.Helper()
	sb, root, _, err := Mount(dev, nil)
	if err != nil {
		t.Fatalf("mount failed: %v", err)
	}
	return sb, root
}
