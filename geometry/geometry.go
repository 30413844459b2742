// Package geometry holds advisory, non-normative FAT32 volume presets. It is
// consulted for warnings and for building realistic test fixtures; nothing
// in the driver's correctness path depends on it.
package geometry

import (
	_ "embed"
	"strings"

	"github.com/gocarina/gocsv"
)

//go:embed geometries.csv
var rawGeometriesCSV string

// Profile describes the conventional layout Microsoft recommends for a
// FAT32 volume of a given size.
type Profile struct {
	Slug              string `csv:"slug"`
	Label             string `csv:"label"`
	MinTotalSectors   uint64 `csv:"min_total_sectors"`
	MaxTotalSectors   uint64 `csv:"max_total_sectors"`
	SectorsPerCluster uint   `csv:"sectors_per_cluster"`
	ReservedSectors   uint   `csv:"reserved_sectors"`
}

var profiles []Profile

func init() {
	profiles = mustParse(rawGeometriesCSV)
}

func mustParse(csv string) []Profile {
	var parsed []Profile
	if err := gocsv.UnmarshalString(csv, &parsed); err != nil {
		panic("geometry: malformed embedded geometries.csv: " + err.Error())
	}
	return parsed
}

// Lookup returns the preset profile whose sector-count range contains
// totalSectors, if any.
func Lookup(totalSectors uint64) (Profile, bool) {
	for _, p := range profiles {
		if totalSectors >= p.MinTotalSectors && totalSectors <= p.MaxTotalSectors {
			return p, true
		}
	}
	return Profile{}, false
}

// BySlug returns the named preset, if it exists.
func BySlug(slug string) (Profile, bool) {
	for _, p := range profiles {
		if strings.EqualFold(p.Slug, slug) {
			return p, true
		}
	}
	return Profile{}, false
}

// All returns every known preset, in ascending order of volume size.
func All() []Profile {
	out := make([]Profile, len(profiles))
	copy(out, profiles)
	return out
}
