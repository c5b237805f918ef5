package kdb

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// PageSize is the fixed size of every page in a kdb file.
const PageSize = 4096

// PageNum addresses a page within the file. Page 0 always holds the file
// header and the catalog tree's root.
type PageNum uint32

// FileHeaderSize is the size, in bytes, of the file header that occupies
// the prefix of page 0.
const FileHeaderSize = 100

// File header layout, all offsets relative to the start of page 0.
const (
	fhOffMagic      = 0  // [4]byte
	fhOffNextFree   = 4  // uint32
	fhOffFreeList   = 8  // uint8
	fhOffChecksum   = 92 // uint64, last 8 bytes before FileHeaderSize
	fhReservedStart = 9
)

// Magic is the 4-byte signature at the start of every kdb file.
var Magic = [4]byte{'k', 'd', 'b', '0'}

// Node type tags, stored in the first byte of every node header.
const (
	NodeTypeLeaf     uint8 = 1
	NodeTypeInternal uint8 = 2
)

// Common node header layout, relative to a node's base offset (0 for every
// page except page 0, where it is FileHeaderSize — see NodeBase).
const (
	nhOffNodeType = 0 // uint8
	nhOffIsRoot   = 1 // uint8
	nhOffParent   = 2 // uint32 (PageNum)
	nhCommonSize  = 6
)

// Leaf node header layout, appended after the common header.
const (
	lhOffNumCells    = nhCommonSize + 0 // uint16
	lhOffAllocPtr    = nhCommonSize + 2 // uint16
	lhOffCellPtrs    = nhCommonSize + 4 // [NumCells]uint16
	leafHeaderSize   = nhCommonSize + 4
	cellHeaderSize   = 4 // key_size(u16) + data_size(u16)
	fixedKeySize     = 8 // keys are 8-byte unsigned integers in this engine
)

// Internal node header layout, appended after the common header.
const (
	ihOffNumKeys       = nhCommonSize + 0 // uint16
	ihOffRightChild    = nhCommonSize + 2 // uint32 (PageNum)
	ihOffEntries       = nhCommonSize + 6 // [NumKeys](child uint32, key uint64)
	internalHeaderSize = nhCommonSize + 6
	internalEntrySize  = 4 + 8 // child(PageNum) + key(uint64)
)

// checksumSize is the trailing region of every page reserved for an
// xxhash64 integrity checksum. It is never available to the cell or
// entry area.
const checksumSize = 8

// usablePageSize is the portion of a page available for node headers,
// pointer arrays, and cell/entry bodies.
const usablePageSize = PageSize - checksumSize

// Page is a single fixed-size disk page, held in memory by the Pager.
// It is a typed view over a raw byte block: every accessor reads or writes
// little-endian fields in place, at the documented offset. Page enforces
// no B-tree semantics of its own.
type Page struct {
	num   PageNum
	data  [PageSize]byte
	dirty bool
}

func newPage(num PageNum) *Page {
	return &Page{num: num}
}

// NodeBase returns the offset at which a node's header begins within this
// page. Page 0 shares its body with the 100-byte file header, so a node
// living on page 0 (the catalog root) starts after it; every other page
// reserves the header's space for nothing and starts at offset 0.
func (p *Page) NodeBase() int {
	return NodeBaseFor(p.num)
}

// NodeBaseFor is the free-function form of Page.NodeBase, usable before a
// page's contents are known (e.g. when deciding how many bytes a brand new
// node on a given PageNum will have available).
func NodeBaseFor(num PageNum) int {
	if num == 0 {
		return FileHeaderSize
	}
	return 0
}

func (p *Page) markDirty() { p.dirty = true }

// ---- file header accessors (meaningful only on page 0) ----

func (p *Page) readMagic() [4]byte {
	var m [4]byte
	copy(m[:], p.data[fhOffMagic:fhOffMagic+4])
	return m
}

func (p *Page) writeMagic() {
	copy(p.data[fhOffMagic:fhOffMagic+4], Magic[:])
}

func (p *Page) nextFreePage() PageNum {
	return PageNum(binary.LittleEndian.Uint32(p.data[fhOffNextFree:]))
}

func (p *Page) setNextFreePage(n PageNum) {
	binary.LittleEndian.PutUint32(p.data[fhOffNextFree:], uint32(n))
	p.markDirty()
}

func (p *Page) hasFreeList() bool {
	return p.data[fhOffFreeList] != 0
}

func (p *Page) setHasFreeList(v bool) {
	if v {
		p.data[fhOffFreeList] = 1
	} else {
		p.data[fhOffFreeList] = 0
	}
	p.markDirty()
}

// headerChecksum computes the xxhash64 of the header fields that precede
// the checksum slot (magic, next_free_page, has_free_list).
func (p *Page) headerChecksum() uint64 {
	return xxhash.Sum64(p.data[0:fhOffChecksum])
}

func (p *Page) writeHeaderChecksum() {
	binary.LittleEndian.PutUint64(p.data[fhOffChecksum:], p.headerChecksum())
}

func (p *Page) verifyHeaderChecksum() bool {
	stored := binary.LittleEndian.Uint64(p.data[fhOffChecksum:])
	return stored == p.headerChecksum()
}

// ---- page checksum (node pages) ----

func (p *Page) computeChecksum() uint64 {
	return xxhash.Sum64(p.data[:PageSize-checksumSize])
}

func (p *Page) writeChecksum() {
	binary.LittleEndian.PutUint64(p.data[PageSize-checksumSize:], p.computeChecksum())
}

func (p *Page) verifyChecksum() bool {
	stored := binary.LittleEndian.Uint64(p.data[PageSize-checksumSize:])
	return stored == p.computeChecksum()
}

// ---- common node header ----

func (p *Page) nodeType() uint8 {
	return p.data[p.NodeBase()+nhOffNodeType]
}

func (p *Page) setNodeType(t uint8) {
	p.data[p.NodeBase()+nhOffNodeType] = t
	p.markDirty()
}

func (p *Page) isRoot() bool {
	return p.data[p.NodeBase()+nhOffIsRoot] != 0
}

func (p *Page) setIsRoot(v bool) {
	b := p.NodeBase()
	if v {
		p.data[b+nhOffIsRoot] = 1
	} else {
		p.data[b+nhOffIsRoot] = 0
	}
	p.markDirty()
}

func (p *Page) parent() PageNum {
	b := p.NodeBase()
	return PageNum(binary.LittleEndian.Uint32(p.data[b+nhOffParent:]))
}

func (p *Page) setParent(n PageNum) {
	b := p.NodeBase()
	binary.LittleEndian.PutUint32(p.data[b+nhOffParent:], uint32(n))
	p.markDirty()
}

// ---- leaf header ----

func (p *Page) numCells() uint16 {
	b := p.NodeBase()
	return binary.LittleEndian.Uint16(p.data[b+lhOffNumCells:])
}

func (p *Page) setNumCells(n uint16) {
	b := p.NodeBase()
	binary.LittleEndian.PutUint16(p.data[b+lhOffNumCells:], n)
	p.markDirty()
}

func (p *Page) allocPtr() uint16 {
	b := p.NodeBase()
	return binary.LittleEndian.Uint16(p.data[b+lhOffAllocPtr:])
}

func (p *Page) setAllocPtr(off uint16) {
	b := p.NodeBase()
	binary.LittleEndian.PutUint16(p.data[b+lhOffAllocPtr:], off)
	p.markDirty()
}

func (p *Page) cellPointerOffset(i int) int {
	return p.NodeBase() + lhOffCellPtrs + i*2
}

func (p *Page) cellPointer(i int) uint16 {
	off := p.cellPointerOffset(i)
	return binary.LittleEndian.Uint16(p.data[off:])
}

func (p *Page) setCellPointer(i int, v uint16) {
	off := p.cellPointerOffset(i)
	binary.LittleEndian.PutUint16(p.data[off:], v)
	p.markDirty()
}

// ---- internal header ----

func (p *Page) numKeys() uint16 {
	b := p.NodeBase()
	return binary.LittleEndian.Uint16(p.data[b+ihOffNumKeys:])
}

func (p *Page) setNumKeys(n uint16) {
	b := p.NodeBase()
	binary.LittleEndian.PutUint16(p.data[b+ihOffNumKeys:], n)
	p.markDirty()
}

func (p *Page) rightChild() PageNum {
	b := p.NodeBase()
	return PageNum(binary.LittleEndian.Uint32(p.data[b+ihOffRightChild:]))
}

func (p *Page) setRightChild(n PageNum) {
	b := p.NodeBase()
	binary.LittleEndian.PutUint32(p.data[b+ihOffRightChild:], uint32(n))
	p.markDirty()
}

func (p *Page) entryOffset(i int) int {
	return p.NodeBase() + ihOffEntries + i*internalEntrySize
}

func (p *Page) entryChild(i int) PageNum {
	off := p.entryOffset(i)
	return PageNum(binary.LittleEndian.Uint32(p.data[off:]))
}

func (p *Page) entryKey(i int) uint64 {
	off := p.entryOffset(i)
	return binary.LittleEndian.Uint64(p.data[off+4:])
}

func (p *Page) setEntry(i int, child PageNum, key uint64) {
	off := p.entryOffset(i)
	binary.LittleEndian.PutUint32(p.data[off:], uint32(child))
	binary.LittleEndian.PutUint64(p.data[off+4:], key)
	p.markDirty()
}
