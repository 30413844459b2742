package fat32

import (
	"github.com/tverdal/gofat32/errors"
)

// Node is the in-memory descriptor of a file or directory within a
// mounted volume, per spec.md §3's node private data. It implements the
// VFS capability set described in spec.md §6.
type Node struct {
	sb *Superblock

	firstCluster  ClusterID
	size          uint32
	attributes    uint8
	isDirectory   bool
	parentCluster ClusterID
	shortName     ShortName
}

func nodeFromDirent(sb *Superblock, parent ClusterID, d Dirent) *Node {
	return &Node{
		sb:            sb,
		firstCluster:  d.FirstCluster,
		size:          d.Size,
		attributes:    d.Attributes,
		isDirectory:   d.IsDirectory(),
		parentCluster: parent,
		shortName:     d.ShortName,
	}
}

// rootNode builds the node private data for a volume's root directory.
func rootNode(sb *Superblock) *Node {
	return &Node{
		sb:            sb,
		firstCluster:  sb.Geometry.RootCluster,
		size:          0,
		attributes:    AttrDirectory,
		isDirectory:   true,
		parentCluster: 0,
	}
}

// IsDirectory reports whether this node is a directory.
func (n *Node) IsDirectory() bool { return n.isDirectory }

// Size returns the node's declared size (0 for directories).
func (n *Node) Size() uint64 { return uint64(n.size) }

// FirstCluster returns the node's first data cluster (0 if it has none).
func (n *Node) FirstCluster() ClusterID { return n.firstCluster }

// Lookup resolves `name` within this directory node, returning the child
// node or NotFound.
func (n *Node) Lookup(name string) (*Node, *errors.DriverError) {
	if !n.isDirectory {
		return nil, errors.Newf(errors.KindInvalid, "lookup on a non-directory node")
	}
	d, err := n.sb.DirEngine.Lookup(n.firstCluster, name)
	if err != nil {
		return nil, err
	}
	return nodeFromDirent(n.sb, n.firstCluster, d), nil
}

// Create adds a new zero-length file named `name` to this directory.
func (n *Node) Create(name string) (*Node, *errors.DriverError) {
	if !n.isDirectory {
		return nil, errors.Newf(errors.KindInvalid, "create on a non-directory node")
	}
	d, err := n.sb.DirEngine.CreateFile(n.firstCluster, name)
	if err != nil {
		return nil, err
	}
	return nodeFromDirent(n.sb, n.firstCluster, d), nil
}

// Mkdir adds a new, initialized subdirectory named `name` to this
// directory.
func (n *Node) Mkdir(name string) (*Node, *errors.DriverError) {
	if !n.isDirectory {
		return nil, errors.Newf(errors.KindInvalid, "mkdir on a non-directory node")
	}
	d, err := n.sb.DirEngine.CreateDirectory(n.firstCluster, name)
	if err != nil {
		return nil, err
	}
	return nodeFromDirent(n.sb, n.firstCluster, d), nil
}

// Read copies up to len(buf) bytes starting at byte offset `offset` from
// this file's data into buf, returning the number of bytes read.
func (n *Node) Read(offset uint64, buf []byte) (int, *errors.DriverError) {
	if n.isDirectory {
		return 0, errors.Newf(errors.KindInvalid, "read on a directory node")
	}
	return n.sb.FileEngine.Read(n.firstCluster, uint64(n.size), offset, buf)
}

// Write stores data at byte offset `offset` in this file, extending the
// chain and declared size as needed, and persists the updated directory
// entry and caches. A single call accepts at most MaxWriteSize bytes.
func (n *Node) Write(offset uint64, data []byte) (int, *errors.DriverError) {
	if n.isDirectory {
		return 0, errors.Newf(errors.KindInvalid, "write on a directory node")
	}

	newFirst, newSize, written, err := n.sb.FileEngine.Write(n.firstCluster, uint64(n.size), offset, data)
	if err != nil && written == 0 {
		return 0, err
	}

	clusterChanged := newFirst != n.firstCluster
	sizeChanged := newSize != uint64(n.size)
	n.firstCluster = newFirst
	n.size = uint32(newSize)

	if clusterChanged || sizeChanged {
		if updateErr := n.sb.DirEngine.UpdateEntry(n.parentCluster, n.shortName, n.firstCluster, n.size); updateErr != nil {
			if err == nil {
				err = updateErr
			}
		}
	}

	if flushErr := n.sb.FAT.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	if flushErr := n.sb.Dir.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	if flushErr := n.sb.Device.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}

	return written, err
}

// Readdir returns up to max live entries starting at the given index
// within this directory's entry list.
func (n *Node) Readdir(offset, max int) ([]Dirent, *errors.DriverError) {
	if !n.isDirectory {
		return nil, errors.Newf(errors.KindInvalid, "readdir on a non-directory node")
	}
	all, err := n.sb.DirEngine.ReadDir(n.firstCluster)
	if err != nil {
		return nil, err
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + max
	if max <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// Unlink removes the child named `name` from this directory.
func (n *Node) Unlink(name string) *errors.DriverError {
	if !n.isDirectory {
		return errors.Newf(errors.KindInvalid, "unlink on a non-directory node")
	}
	return n.sb.DirEngine.Unlink(n.firstCluster, name)
}

// Release drops this node's reference. The core keeps no out-of-band
// state per node beyond what the caller holds, so this is a no-op; it
// exists to satisfy the VFS capability contract's lifecycle symmetry.
func (n *Node) Release() *errors.DriverError {
	return nil
}
