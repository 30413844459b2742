package fat32

import (
	"bytes"
	"encoding/binary"

	"github.com/noxer/bytewriter"

	"github.com/tverdal/gofat32/errors"
)

// rawBootSector is the on-disk, packed layout of a FAT32 boot sector. Field
// order (not Go memory layout) determines the wire offsets documented in
// spec.md §6; encoding/binary walks fields in declaration order, so no
// field may be reordered without also updating the offsets below.
type rawBootSector struct {
	JmpBoot           [3]byte  // @0
	OEMName           [8]byte  // @3
	BytesPerSector    uint16   // @11
	SectorsPerCluster uint8    // @13
	ReservedSectors   uint16   // @14
	NumFATs           uint8    // @16
	RootEntryCount    uint16   // @17
	TotalSectors16    uint16   // @19
	Media             uint8    // @21
	SectorsPerFAT16   uint16   // @22
	SectorsPerTrack   uint16   // @24
	NumHeads          uint16   // @26
	HiddenSectors     uint32   // @28
	TotalSectors32    uint32   // @32
	SectorsPerFAT32   uint32   // @36
	ExtFlags          uint16   // @40
	FSVersion         uint16   // @42
	RootCluster       uint32   // @44
	FSInfoSector      uint16   // @48
	BackupBootSector  uint16   // @50
	Reserved          [12]byte // @52
	DriveNumber       uint8    // @64
	Reserved1         uint8    // @65
	BootSignature     uint8    // @66
	VolumeID          uint32   // @67
	VolumeLabel       [11]byte // @71
	FileSystemType    [8]byte  // @82
	BootCode          [420]byte
	Signature         uint16 // @510, must be 0xAA55
}

const bootSignature = 0xAA55

// Geometry holds the volume layout derived from the boot sector. It is
// immutable for the lifetime of a mount, per spec.md §3.
type Geometry struct {
	BytesPerSector    uint
	SectorsPerCluster uint
	ReservedSectors   uint
	NumFATs           uint
	SectorsPerFAT     uint
	RootCluster       ClusterID
	FSInfoSector      SectorID
	BackupBootSector  SectorID
	TotalSectors      uint64

	FATStart     SectorID
	DataStart    SectorID
	ClusterSize  uint
	TotalClusters uint
}

// parseBootSector decodes and validates a 512-byte boot sector, per the
// mount protocol's step 1 in spec.md §4.9.
func parseBootSector(sector []byte) (Geometry, *errors.DriverError) {
	if len(sector) != 512 {
		return Geometry{}, errors.Newf(errors.KindMountInvalid, "boot sector must be 512 bytes, got %d", len(sector))
	}

	var raw rawBootSector
	if err := binary.Read(bytes.NewReader(sector), binary.LittleEndian, &raw); err != nil {
		return Geometry{}, errors.Wrap(errors.KindMountInvalid, err)
	}

	if raw.Signature != bootSignature {
		return Geometry{}, errors.Newf(errors.KindMountInvalid, "bad boot signature 0x%04X, want 0xAA55", raw.Signature)
	}
	if raw.BytesPerSector != 512 {
		return Geometry{}, errors.Newf(errors.KindMountInvalid, "bytes-per-sector must be 512, got %d", raw.BytesPerSector)
	}
	if raw.RootEntryCount != 0 {
		return Geometry{}, errors.Newf(errors.KindMountInvalid, "root-entry-count must be 0 on FAT32, got %d", raw.RootEntryCount)
	}
	if raw.SectorsPerFAT16 != 0 {
		return Geometry{}, errors.Newf(errors.KindMountInvalid, "sectors-per-fat-16 must be 0 on FAT32, got %d", raw.SectorsPerFAT16)
	}
	if raw.SectorsPerFAT32 == 0 {
		return Geometry{}, errors.Newf(errors.KindMountInvalid, "sectors-per-fat-32 must be nonzero")
	}
	if raw.NumFATs == 0 {
		return Geometry{}, errors.Newf(errors.KindMountInvalid, "number of FATs must be nonzero")
	}
	if raw.RootCluster < 2 {
		return Geometry{}, errors.Newf(errors.KindMountInvalid, "root cluster must be >= 2, got %d", raw.RootCluster)
	}

	switch raw.SectorsPerCluster {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		return Geometry{}, errors.Newf(errors.KindMountInvalid, "sectors-per-cluster must be a power of 2 in [1,128], got %d", raw.SectorsPerCluster)
	}
	if raw.ReservedSectors == 0 {
		return Geometry{}, errors.Newf(errors.KindMountInvalid, "reserved-sectors must be >= 1")
	}

	totalSectors := uint64(raw.TotalSectors32)
	if raw.TotalSectors16 != 0 {
		totalSectors = uint64(raw.TotalSectors16)
	}

	fatStart := SectorID(raw.ReservedSectors)
	dataStart := fatStart + SectorID(uint(raw.NumFATs)*uint(raw.SectorsPerFAT32))
	if uint64(dataStart) >= totalSectors {
		return Geometry{}, errors.Newf(errors.KindMountInvalid, "data region starts at sector %d, at or past end of volume (%d sectors)", dataStart, totalSectors)
	}
	if fatStart >= dataStart {
		return Geometry{}, errors.Newf(errors.KindMountInvalid, "FAT region does not precede data region")
	}

	clusterSize := uint(raw.SectorsPerCluster) * 512
	totalClusters := uint((totalSectors - uint64(dataStart)) / uint64(raw.SectorsPerCluster))
	if totalClusters < 65525 {
		return Geometry{}, errors.Newf(errors.KindMountInvalid, "only %d data clusters; FAT32 requires at least 65,525", totalClusters)
	}

	fsInfoSector := raw.FSInfoSector
	if fsInfoSector == 0 {
		fsInfoSector = 1
	}
	backupBootSector := raw.BackupBootSector
	if backupBootSector == 0 {
		backupBootSector = 6
	}

	return Geometry{
		BytesPerSector:    512,
		SectorsPerCluster: uint(raw.SectorsPerCluster),
		ReservedSectors:   uint(raw.ReservedSectors),
		NumFATs:           uint(raw.NumFATs),
		SectorsPerFAT:     uint(raw.SectorsPerFAT32),
		RootCluster:       ClusterID(raw.RootCluster),
		FSInfoSector:      SectorID(fsInfoSector),
		BackupBootSector:  SectorID(backupBootSector),
		TotalSectors:      totalSectors,
		FATStart:          fatStart,
		DataStart:         dataStart,
		ClusterSize:       clusterSize,
		TotalClusters:     totalClusters,
	}, nil
}

// encodeBootSector serializes geometry back into a fresh 512-byte boot
// sector image. It is used by this package's test fixtures, not by the
// mount path (mount only ever reads an existing boot sector).
func encodeBootSector(g Geometry, volumeLabel string) []byte {
	buf := make([]byte, 512)
	bw := bytewriter.New(buf)

	raw := rawBootSector{
		JmpBoot:           [3]byte{0xEB, 0x58, 0x90},
		BytesPerSector:    uint16(g.BytesPerSector),
		SectorsPerCluster: uint8(g.SectorsPerCluster),
		ReservedSectors:   uint16(g.ReservedSectors),
		NumFATs:           uint8(g.NumFATs),
		Media:             0xF8,
		SectorsPerFAT32:   uint32(g.SectorsPerFAT),
		RootCluster:       uint32(g.RootCluster),
		FSInfoSector:      uint16(g.FSInfoSector),
		BackupBootSector:  uint16(g.BackupBootSector),
		BootSignature:     0x29,
		Signature:         bootSignature,
	}
	copy(raw.OEMName[:], "GOFAT32 ")
	copy(raw.VolumeLabel[:], padRight(volumeLabel, 11))
	copy(raw.FileSystemType[:], "FAT32   ")

	if raw.TotalSectors32 == 0 {
		raw.TotalSectors32 = uint32(g.TotalSectors)
	}

	_ = binary.Write(bw, binary.LittleEndian, &raw)
	return buf
}

func padRight(s string, n int) string {
	for len(s) < n {
		s += " "
	}
	if len(s) > n {
		s = s[:n]
	}
	return s
}
