package fat32

import (
	"strings"

	"github.com/tverdal/gofat32/errors"
)

// ShortName is the 11-byte, space-padded, uppercase on-disk form of an 8.3
// name: 8 bytes of base, 3 bytes of extension.
type ShortName [11]byte

// shortNameCharset is the set of bytes legal in an 8.3 short name after
// uppercasing, per spec.md §4.2 and §6.
func isShortNameChar(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '_' || b == '-' || b == '~':
		return true
	}
	return false
}

// ParseShortName converts a displayable name into its 11-byte, space-padded
// on-disk short-name form. It rejects empty names, names with a base longer
// than 8 characters or extension longer than 3, and any character outside
// {A-Z, 0-9, _, -, ~} once uppercased.
func ParseShortName(name string) (ShortName, *errors.DriverError) {
	var out ShortName

	if len(name) == 0 {
		return out, errors.Newf(errors.KindInvalid, "short name cannot be empty")
	}

	upper := strings.ToUpper(name)
	base, ext, hasExt := strings.Cut(upper, ".")
	if hasExt && strings.Contains(ext, ".") {
		return out, errors.Newf(errors.KindInvalid, "short name %q has more than one dot", name)
	}

	if len(base) == 0 || len(base) > 8 {
		return out, errors.Newf(errors.KindInvalid, "base name %q must be 1-8 characters", base)
	}
	if len(ext) > 3 {
		return out, errors.Newf(errors.KindInvalid, "extension %q must be at most 3 characters", ext)
	}

	for i := 0; i < len(base); i++ {
		if !isShortNameChar(base[i]) {
			return out, errors.Newf(errors.KindInvalid, "character %q not allowed in short names", base[i])
		}
	}
	for i := 0; i < len(ext); i++ {
		if !isShortNameChar(ext[i]) {
			return out, errors.Newf(errors.KindInvalid, "character %q not allowed in short names", ext[i])
		}
	}

	for i := range out {
		out[i] = ' '
	}
	copy(out[0:8], base)
	copy(out[8:11], ext)
	return out, nil
}

// FormatShortName converts an 11-byte on-disk short name into its displayable
// "BASE.EXT" (or "BASE") form, trimming trailing spaces from each half. It
// rejects any byte outside the printable ASCII range [0x20, 0x7E].
func FormatShortName(raw ShortName) (string, *errors.DriverError) {
	for _, b := range raw {
		if b < 0x20 || b > 0x7E {
			return "", errors.Newf(errors.KindInvalid, "short name contains non-printable byte 0x%02X", b)
		}
	}

	base := strings.TrimRight(string(raw[0:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")

	if ext == "" {
		return base, nil
	}
	return base + "." + ext, nil
}

// ShortNameChecksum computes the Microsoft LFN checksum of an 8.3 short
// name, per spec.md §4.2: rotate-add across all 11 bytes of the raw name.
func ShortNameChecksum(raw ShortName) uint8 {
	var sum uint8
	for _, b := range raw {
		var rotated uint8
		if sum&1 != 0 {
			rotated = 0x80
		}
		sum = rotated + (sum >> 1) + b
	}
	return sum
}
