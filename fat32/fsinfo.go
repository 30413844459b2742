package fat32

import (
	"bytes"
	"encoding/binary"

	"github.com/noxer/bytewriter"

	"github.com/tverdal/gofat32/errors"
)

const (
	fsInfoLeadSignature   uint32 = 0x41615252
	fsInfoStructSignature uint32 = 0x61417272
	fsInfoTrailSignature  uint32 = 0xAA550000

	// FSInfoUnknown marks a field as "unknown, must be recomputed by
	// scanning the FAT", per spec.md §3.
	FSInfoUnknown uint32 = 0xFFFFFFFF
)

type rawFSInfo struct {
	LeadSignature   uint32   // @0
	Reserved1       [480]byte // @4
	StructSignature uint32   // @484
	FreeClusters    uint32   // @488
	NextFree        uint32   // @492
	Reserved2       [12]byte // @496
	TrailSignature  uint32   // @508
}

// FSInfo is the processed form of a volume's FSInfo sector.
type FSInfo struct {
	FreeClusters uint32
	NextFree     uint32
}

// parseFSInfo decodes and validates the three FSInfo signatures, per
// spec.md §4.9 step 3.
func parseFSInfo(sector []byte) (FSInfo, *errors.DriverError) {
	if len(sector) != 512 {
		return FSInfo{}, errors.Newf(errors.KindMountInvalid, "FSInfo sector must be 512 bytes, got %d", len(sector))
	}

	var raw rawFSInfo
	if err := binary.Read(bytes.NewReader(sector), binary.LittleEndian, &raw); err != nil {
		return FSInfo{}, errors.Wrap(errors.KindMountInvalid, err)
	}

	if raw.LeadSignature != fsInfoLeadSignature {
		return FSInfo{}, errors.Newf(errors.KindMountInvalid, "bad FSInfo lead signature 0x%08X", raw.LeadSignature)
	}
	if raw.StructSignature != fsInfoStructSignature {
		return FSInfo{}, errors.Newf(errors.KindMountInvalid, "bad FSInfo struct signature 0x%08X", raw.StructSignature)
	}
	if raw.TrailSignature != fsInfoTrailSignature {
		return FSInfo{}, errors.Newf(errors.KindMountInvalid, "bad FSInfo trail signature 0x%08X", raw.TrailSignature)
	}

	return FSInfo{FreeClusters: raw.FreeClusters, NextFree: raw.NextFree}, nil
}

// encodeFSInfo serializes info into a fresh 512-byte FSInfo sector image.
func encodeFSInfo(info FSInfo) []byte {
	buf := make([]byte, 512)
	bw := bytewriter.New(buf)

	raw := rawFSInfo{
		LeadSignature:   fsInfoLeadSignature,
		StructSignature: fsInfoStructSignature,
		FreeClusters:    info.FreeClusters,
		NextFree:        info.NextFree,
		TrailSignature:  fsInfoTrailSignature,
	}
	_ = binary.Write(bw, binary.LittleEndian, &raw)
	return buf
}
