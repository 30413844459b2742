package fat32

import (
	"encoding/binary"

	"github.com/tverdal/gofat32/errors"
)

// rawDirent is the on-disk, packed layout of one 32-byte directory entry,
// per spec.md §3.
type rawDirent struct {
	Name             [8]byte
	Extension        [3]byte
	Attributes       uint8
	NTReserved       uint8
	CreateTimeTenths uint8
	CreateTime       uint16
	CreateDate       uint16
	LastAccessDate   uint16
	FirstClusterHigh uint16
	WriteTime        uint16
	WriteDate        uint16
	FirstClusterLow  uint16
	FileSize         uint32
}

func decodeRawDirent(data []byte) rawDirent {
	var r rawDirent
	copy(r.Name[:], data[0:8])
	copy(r.Extension[:], data[8:11])
	r.Attributes = data[11]
	r.NTReserved = data[12]
	r.CreateTimeTenths = data[13]
	r.CreateTime = binary.LittleEndian.Uint16(data[14:16])
	r.CreateDate = binary.LittleEndian.Uint16(data[16:18])
	r.LastAccessDate = binary.LittleEndian.Uint16(data[18:20])
	r.FirstClusterHigh = binary.LittleEndian.Uint16(data[20:22])
	r.WriteTime = binary.LittleEndian.Uint16(data[22:24])
	r.WriteDate = binary.LittleEndian.Uint16(data[24:26])
	r.FirstClusterLow = binary.LittleEndian.Uint16(data[26:28])
	r.FileSize = binary.LittleEndian.Uint32(data[28:32])
	return r
}

func encodeRawDirent(r rawDirent) [DirentSize]byte {
	var out [DirentSize]byte
	copy(out[0:8], r.Name[:])
	copy(out[8:11], r.Extension[:])
	out[11] = r.Attributes
	out[12] = r.NTReserved
	out[13] = r.CreateTimeTenths
	binary.LittleEndian.PutUint16(out[14:16], r.CreateTime)
	binary.LittleEndian.PutUint16(out[16:18], r.CreateDate)
	binary.LittleEndian.PutUint16(out[18:20], r.LastAccessDate)
	binary.LittleEndian.PutUint16(out[20:22], r.FirstClusterHigh)
	binary.LittleEndian.PutUint16(out[22:24], r.WriteTime)
	binary.LittleEndian.PutUint16(out[24:26], r.WriteDate)
	binary.LittleEndian.PutUint16(out[26:28], r.FirstClusterLow)
	binary.LittleEndian.PutUint32(out[28:32], r.FileSize)
	return out
}

func (r rawDirent) shortName() ShortName {
	var sn ShortName
	copy(sn[0:8], r.Name[:])
	copy(sn[8:11], r.Extension[:])
	return sn
}

func firstClusterOf(high, low uint16) ClusterID {
	return ClusterID(uint32(high)<<16 | uint32(low))
}

func splitCluster(c ClusterID) (high, low uint16) {
	v := uint32(c)
	return uint16(v >> 16), uint16(v & 0xFFFF)
}

// direntKind classifies a raw 32-byte slot during directory iteration, per
// spec.md §4.7.
type direntKind int

const (
	direntEndOfDirectory direntKind = iota
	direntDeleted
	direntLongName
	direntVolumeLabel
	direntLive
)

func classifyDirent(r rawDirent) direntKind {
	switch {
	case r.Name[0] == 0x00:
		return direntEndOfDirectory
	case r.Name[0] == 0xE5:
		return direntDeleted
	case r.Attributes == AttrLongName:
		return direntLongName
	case r.Attributes&AttrVolumeID != 0:
		return direntVolumeLabel
	default:
		return direntLive
	}
}

// Dirent is the processed, in-memory form of a live directory entry.
type Dirent struct {
	ShortName    ShortName
	DisplayName  string
	Attributes   uint8
	FirstCluster ClusterID
	Size         uint32
}

func (d Dirent) IsDirectory() bool {
	return d.Attributes&AttrDirectory != 0
}

func newDirentFromRaw(r rawDirent) (Dirent, *errors.DriverError) {
	name, err := FormatShortName(r.shortName())
	if err != nil {
		return Dirent{}, err
	}
	return Dirent{
		ShortName:    r.shortName(),
		DisplayName:  name,
		Attributes:   r.Attributes,
		FirstCluster: firstClusterOf(r.FirstClusterHigh, r.FirstClusterLow),
		Size:         r.FileSize,
	}, nil
}
