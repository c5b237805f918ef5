package kdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeafInsertAndFindCell(t *testing.T) {
	p := newPage(1)
	leaf := InitLeaf(p, 0, true)

	idx, exact := leaf.FindCell(10)
	require.False(t, exact)
	require.Equal(t, 0, idx)
	leaf.InsertCell(idx, 10, []byte("ten"))

	idx, exact = leaf.FindCell(5)
	require.False(t, exact)
	require.Equal(t, 0, idx)
	leaf.InsertCell(idx, 5, []byte("five"))

	idx, exact = leaf.FindCell(20)
	require.False(t, exact)
	require.Equal(t, 2, idx)
	leaf.InsertCell(idx, 20, []byte("twenty"))

	require.Equal(t, 3, leaf.NumCells())

	k, d := leaf.Cell(0)
	assert.Equal(t, uint64(5), k)
	assert.Equal(t, "five", string(d))

	k, d = leaf.Cell(1)
	assert.Equal(t, uint64(10), k)
	assert.Equal(t, "ten", string(d))

	k, d = leaf.Cell(2)
	assert.Equal(t, uint64(20), k)
	assert.Equal(t, "twenty", string(d))

	idx, exact = leaf.FindCell(10)
	assert.True(t, exact)
	assert.Equal(t, 1, idx)
}

func TestLeafIsFullReflectsRemainingSpace(t *testing.T) {
	p := newPage(1)
	leaf := InitLeaf(p, 0, true)

	assert.False(t, leaf.IsFull(100))

	huge := make([]byte, usablePageSize)
	assert.True(t, leaf.IsFull(len(huge)))
}

func TestMaxCellDataAcceptsExactFitAndRejectsOneByteMore(t *testing.T) {
	p := newPage(1)
	leaf := InitLeaf(p, 0, true)
	max := leaf.MaxCellData()

	atMax := make([]byte, max)
	assert.False(t, leaf.IsFull(len(atMax)), "a cell at exactly MaxCellData must fit an empty leaf")

	oneMore := make([]byte, max+1)
	assert.True(t, leaf.IsFull(len(oneMore)), "a cell one byte over MaxCellData must not fit even an empty leaf")
}

func TestMaxCellDataAccountsForPageZeroHeader(t *testing.T) {
	onPageZero := InitLeaf(newPage(0), 0, true)
	onOtherPage := InitLeaf(newPage(1), 0, true)

	assert.Less(t, onPageZero.MaxCellData(), onOtherPage.MaxCellData(),
		"page 0's smaller usable area must yield a smaller capacity than any other page")
}

func TestInternalInsertEntryOrdering(t *testing.T) {
	p := newPage(2)
	node := InitInternal(p, 0, true)

	node.InsertEntry(10, 100)
	node.InsertEntry(20, 50)
	node.InsertEntry(30, 200)
	node.SetRightChild(40)

	require.Equal(t, 3, node.NumKeys())

	c, k := node.EntryAt(0)
	assert.Equal(t, PageNum(20), c)
	assert.Equal(t, uint64(50), k)

	c, k = node.EntryAt(1)
	assert.Equal(t, PageNum(10), c)
	assert.Equal(t, uint64(100), k)

	c, k = node.EntryAt(2)
	assert.Equal(t, PageNum(30), c)
	assert.Equal(t, uint64(200), k)

	assert.Equal(t, PageNum(40), node.RightChild())
}

func TestFindChildReturnsFirstKeyGEOrRightChild(t *testing.T) {
	p := newPage(2)
	node := InitInternal(p, 0, true)
	node.InsertEntry(1, 10)
	node.InsertEntry(2, 20)
	node.SetRightChild(3)

	assert.Equal(t, PageNum(1), node.FindChild(5))
	assert.Equal(t, PageNum(1), node.FindChild(10))
	assert.Equal(t, PageNum(2), node.FindChild(11))
	assert.Equal(t, PageNum(3), node.FindChild(21))
}

func TestSetEntryKeyUpdatesInPlace(t *testing.T) {
	p := newPage(2)
	node := InitInternal(p, 0, true)
	node.InsertEntry(1, 10)
	node.InsertEntry(2, 20)

	node.SetEntryKey(0, 15)
	c, k := node.EntryAt(0)
	assert.Equal(t, PageNum(1), c)
	assert.Equal(t, uint64(15), k)
}
