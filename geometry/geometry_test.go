package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupFindsMatchingProfile(t *testing.T) {
	p, ok := Lookup(1000000)
	assert.True(t, ok)
	assert.Equal(t, "fat32-260m-8g", p.Slug)
	assert.Equal(t, uint(8), p.SectorsPerCluster)
}

func TestLookupReturnsFalseOutsideAnyRange(t *testing.T) {
	_, ok := Lookup(100)
	assert.False(t, ok)
}

func TestLookupBoundaryIsInclusive(t *testing.T) {
	p, ok := Lookup(65525)
	assert.True(t, ok)
	assert.Equal(t, "fat32-small", p.Slug)

	p, ok = Lookup(532480)
	assert.True(t, ok)
	assert.Equal(t, "fat32-small", p.Slug)

	p, ok = Lookup(532481)
	assert.True(t, ok)
	assert.Equal(t, "fat32-260m-8g", p.Slug)
}

func TestBySlugIsCaseInsensitive(t *testing.T) {
	p, ok := BySlug("FAT32-SMALL")
	assert.True(t, ok)
	assert.Equal(t, uint(1), p.SectorsPerCluster)

	_, ok = BySlug("nonexistent")
	assert.False(t, ok)
}

func TestAllReturnsEveryProfileAndIsACopy(t *testing.T) {
	all := All()
	assert.Len(t, all, 5)

	all[0].Slug = "mutated"
	again := All()
	assert.Equal(t, "fat32-small", again[0].Slug, "All() must return an independent copy")
}
