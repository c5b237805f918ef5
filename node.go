package kdb

import "encoding/binary"

// Node wraps a Page with B-tree node operations. All
// accessors mutate the underlying Page in place; callers are responsible
// for marking the owning Pager entry dirty (Page.markDirty already does
// this on every write).
type Node struct {
	page *Page
}

func wrapNode(p *Page) *Node {
	return &Node{page: p}
}

// InitLeaf initializes the page as an empty leaf node.
func InitLeaf(p *Page, parent PageNum, isRoot bool) *Node {
	p.setNodeType(NodeTypeLeaf)
	p.setIsRoot(isRoot)
	p.setParent(parent)
	p.setNumCells(0)
	p.setAllocPtr(uint16(usablePageSize))
	return wrapNode(p)
}

// InitInternal initializes the page as an empty internal node.
func InitInternal(p *Page, parent PageNum, isRoot bool) *Node {
	p.setNodeType(NodeTypeInternal)
	p.setIsRoot(isRoot)
	p.setParent(parent)
	p.setNumKeys(0)
	p.setRightChild(0)
	return wrapNode(p)
}

// IsLeaf reports whether the node is a leaf.
func (n *Node) IsLeaf() bool { return n.page.nodeType() == NodeTypeLeaf }

// PageNum returns the PageNum this node lives on.
func (n *Node) PageNum() PageNum { return n.page.num }

// Parent returns the node's recorded parent PageNum (equal to its own
// PageNum when it is the root).
func (n *Node) Parent() PageNum { return n.page.parent() }

// SetParent updates the node's recorded parent.
func (n *Node) SetParent(p PageNum) { n.page.setParent(p) }

// IsRoot reports whether the node is currently flagged as the tree root.
func (n *Node) IsRoot() bool { return n.page.isRoot() }

// SetIsRoot updates the node's root flag.
func (n *Node) SetIsRoot(v bool) { n.page.setIsRoot(v) }

// ---- leaf operations ----

// NumCells returns the number of cells stored in a leaf.
func (n *Node) NumCells() int { return int(n.page.numCells()) }

func (n *Node) leafKeyAt(i int) uint64 {
	off := int(n.page.cellPointer(i))
	return binary.LittleEndian.Uint64(n.page.data[off+cellHeaderSize:])
}

// FindCell performs a binary search over a leaf's cell pointers ordered by
// key ascending. It returns the index the key occupies (if exact) or the
// index it should be inserted at (if not), and whether the match was
// exact.
func (n *Node) FindCell(key uint64) (index int, exact bool) {
	lo, hi := 0, n.NumCells()
	for lo < hi {
		mid := (lo + hi) / 2
		k := n.leafKeyAt(mid)
		switch {
		case k == key:
			return mid, true
		case k < key:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// Cell returns a (key, data) view for the cell at index, without copying.
func (n *Node) Cell(index int) (key uint64, data []byte) {
	off := int(n.page.cellPointer(index))
	keySize := binary.LittleEndian.Uint16(n.page.data[off:])
	dataSize := binary.LittleEndian.Uint16(n.page.data[off+2:])
	keyBytes := n.page.data[off+cellHeaderSize : off+cellHeaderSize+int(keySize)]
	data = n.page.data[off+cellHeaderSize+int(keySize) : off+cellHeaderSize+int(keySize)+int(dataSize)]
	key = binary.LittleEndian.Uint64(keyBytes)
	return key, data
}

// cellPointerEnd returns the absolute offset one past the end of the
// pointer array if it held NumCells()+withExtra entries.
func (n *Node) cellPointerEnd(withExtra int) int {
	return n.page.NodeBase() + lhOffCellPtrs + (n.NumCells()+withExtra)*2
}

// IsFull reports whether inserting one more cell of dataSize bytes (with
// an 8-byte key) would cause the pointer array and the cell area to
// overlap.
func (n *Node) IsFull(dataSize int) bool {
	required := cellHeaderSize + fixedKeySize + dataSize
	newAlloc := int(n.page.allocPtr()) - required
	return newAlloc < n.cellPointerEnd(1)
}

// MaxCellData returns the largest data size a single cell could ever hold
// on a leaf at n's page base, i.e. the capacity of a leaf that is
// completely empty. There are no overflow pages in this engine, so a cell
// larger than this has no home anywhere in the tree.
func (n *Node) MaxCellData() int {
	base := n.page.NodeBase()
	return usablePageSize - base - leafHeaderSize - 2 - cellHeaderSize - fixedKeySize
}

// InsertCell inserts a new (key, data) cell at index, shifting the pointer
// array right by one slot and writing the cell body at the new alloc_ptr.
func (n *Node) InsertCell(index int, key uint64, data []byte) {
	numCells := n.NumCells()

	// Shift pointer array right to make room at index.
	for i := numCells; i > index; i-- {
		n.page.setCellPointer(i, n.page.cellPointer(i-1))
	}

	required := cellHeaderSize + fixedKeySize + len(data)
	newAlloc := int(n.page.allocPtr()) - required

	keyBytes := make([]byte, fixedKeySize)
	binary.LittleEndian.PutUint64(keyBytes, key)

	binary.LittleEndian.PutUint16(n.page.data[newAlloc:], uint16(fixedKeySize))
	binary.LittleEndian.PutUint16(n.page.data[newAlloc+2:], uint16(len(data)))
	copy(n.page.data[newAlloc+cellHeaderSize:], keyBytes)
	copy(n.page.data[newAlloc+cellHeaderSize+fixedKeySize:], data)

	n.page.setCellPointer(index, uint16(newAlloc))
	n.page.setAllocPtr(uint16(newAlloc))
	n.page.setNumCells(uint16(numCells + 1))
}

// ---- internal operations ----

// NumKeys returns the number of separator keys stored in an internal node.
func (n *Node) NumKeys() int { return int(n.page.numKeys()) }

// RightChild returns the rightmost child (the keys-greater-than-all path).
func (n *Node) RightChild() PageNum { return n.page.rightChild() }

// SetRightChild sets the rightmost child pointer.
func (n *Node) SetRightChild(c PageNum) { n.page.setRightChild(c) }

// EntryAt returns the (child, key) pair stored at index.
func (n *Node) EntryAt(index int) (child PageNum, key uint64) {
	return n.page.entryChild(index), n.page.entryKey(index)
}

// SetEntryKey updates the key of the entry at index without moving it.
func (n *Node) SetEntryKey(index int, key uint64) {
	c, _ := n.EntryAt(index)
	n.page.setEntry(index, c, key)
}

// FindChild returns the child PageNum to descend into for key: the first
// child whose separator key is >= key, else the right child.
func (n *Node) FindChild(key uint64) PageNum {
	numKeys := n.NumKeys()
	for i := 0; i < numKeys; i++ {
		c, k := n.EntryAt(i)
		if k >= key {
			return c
		}
	}
	return n.RightChild()
}

// IsFullInternal reports whether the internal node has no room for one
// more entry.
func (n *Node) IsFullInternal() bool {
	end := n.page.NodeBase() + ihOffEntries + (n.NumKeys()+1)*internalEntrySize
	return end > usablePageSize
}

// InsertEntry inserts a new (child, key) entry preserving ascending key
// order. The caller is responsible for the right_child invariant when the
// new entry is the rightmost.
func (n *Node) InsertEntry(child PageNum, key uint64) {
	numKeys := n.NumKeys()
	index := numKeys
	for i := 0; i < numKeys; i++ {
		_, k := n.EntryAt(i)
		if key < k {
			index = i
			break
		}
	}

	for i := numKeys; i > index; i-- {
		c, k := n.EntryAt(i - 1)
		n.page.setEntry(i, c, k)
	}

	n.page.setEntry(index, child, key)
	n.page.setNumKeys(uint16(numKeys + 1))
}
