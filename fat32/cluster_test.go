package fat32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tverdal/gofat32/errors"
)

func TestClusterLayerAllocateAndFree(t *testing.T) {
	dev, geom := buildTestVolume(t, defaultTestVolumeParams())
	sb, _ := mustMount(t, dev)

	before, err := sb.Cluster.CountFreeClusters()
	require.Nil(t, err)

	c, err := sb.Cluster.Allocate()
	require.Nil(t, err)
	assert.GreaterOrEqual(t, uint(c), uint(2))
	assert.Less(t, uint(c), geom.TotalClusters+2)

	val, err := sb.FAT.Get(c)
	require.Nil(t, err)
	assert.True(t, IsEndOfChain(val))

	require.Nil(t, sb.Cluster.FreeChain(c))

	after, err := sb.Cluster.CountFreeClusters()
	require.Nil(t, err)
	assert.Equal(t, before, after)

	val, err = sb.FAT.Get(c)
	require.Nil(t, err)
	assert.Equal(t, ClusterFree, val)
}

func TestClusterLayerAllocateWraparound(t *testing.T) {
	dev, geom := buildTestVolume(t, defaultTestVolumeParams())
	sb, _ := mustMount(t, dev)

	sb.FSInfo.NextFree = uint32(geom.TotalClusters) + 5 // out of range

	c, err := sb.Cluster.Allocate()
	require.Nil(t, err)
	assert.Equal(t, ClusterID(3), c) // cluster 2 is root, already occupied
	assert.Equal(t, uint32(4), sb.FSInfo.NextFree)
}

func TestClusterLayerExtendChain(t *testing.T) {
	dev, _ := buildTestVolume(t, defaultTestVolumeParams())
	sb, _ := mustMount(t, dev)

	head, err := sb.Cluster.Allocate()
	require.Nil(t, err)

	added, err := sb.Cluster.ExtendChain(head, 3)
	require.Nil(t, err)
	assert.Equal(t, uint(3), added)

	length, err := sb.Cluster.CountChainLength(head)
	require.Nil(t, err)
	assert.Equal(t, uint(4), length)
}

func TestClusterLayerValidateChainDetectsCycle(t *testing.T) {
	dev, _ := buildTestVolume(t, defaultTestVolumeParams())
	sb, _ := mustMount(t, dev)

	a, err := sb.Cluster.Allocate()
	require.Nil(t, err)
	b, err := sb.Cluster.Allocate()
	require.Nil(t, err)

	require.Nil(t, sb.FAT.Set(a, b))
	require.Nil(t, sb.FAT.Set(b, a))
	require.Nil(t, sb.FAT.Flush())

	_, err = sb.Cluster.ValidateChain(a)
	require.NotNil(t, err)
}

func TestClusterLayerWalkVisitsEveryCluster(t *testing.T) {
	dev, _ := buildTestVolume(t, defaultTestVolumeParams())
	sb, _ := mustMount(t, dev)

	head, err := sb.Cluster.Allocate()
	require.Nil(t, err)
	_, err = sb.Cluster.ExtendChain(head, 2)
	require.Nil(t, err)

	var visited []ClusterID
	err = sb.Cluster.Walk(head, func(c ClusterID) (bool, *errors.DriverError) {
		visited = append(visited, c)
		return false, nil
	})
	require.Nil(t, err)
	assert.Len(t, visited, 3)
}
