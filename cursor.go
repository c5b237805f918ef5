package kdb

// Cursor is a position within one table's tree: a leaf page plus a cell
// index inside it. It keeps a reference to the current leaf's page and
// reads cells from it directly; the leaf is not re-fetched through the
// Pager on each read.
type Cursor struct {
	table      *Table
	leaf       *Node
	cellIndex  int
	endOfTable bool
}

// FromStart positions a cursor at the first cell of table, in key order.
func (t *Table) FromStart() (*Cursor, error) {
	leaf, err := t.tree.leftmostLeaf()
	if err != nil {
		return nil, err
	}
	c := &Cursor{table: t, leaf: leaf, cellIndex: 0}
	c.endOfTable = leaf.NumCells() == 0
	return c, nil
}

// Find positions a cursor at the cell where key is, or where it would be
// inserted if absent.
func (t *Table) Find(key uint64) (*Cursor, error) {
	leaf, err := t.tree.findLeaf(key)
	if err != nil {
		return nil, err
	}
	idx, _ := leaf.FindCell(key)
	c := &Cursor{table: t, leaf: leaf, cellIndex: idx}
	c.endOfTable = idx >= leaf.NumCells()
	return c, nil
}

// Value returns the (key, data) pair the cursor is positioned on. It
// fails if the cursor is exhausted.
func (c *Cursor) Value() (key uint64, data []byte, err error) {
	if c.endOfTable {
		return 0, nil, ErrEndOfTable
	}
	key, view := c.leaf.Cell(c.cellIndex)
	data = make([]byte, len(view))
	copy(data, view)
	return key, data, nil
}

// Advance moves the cursor to the next cell in key order, following the
// parent chain to the next leaf when the current leaf is exhausted.
func (c *Cursor) Advance() error {
	if c.endOfTable {
		return nil
	}

	c.cellIndex++
	if c.cellIndex < c.leaf.NumCells() {
		return nil
	}

	next, err := c.table.tree.nextLeafAfter(c.leaf)
	if err != nil {
		return err
	}
	if next == nil {
		c.endOfTable = true
		return nil
	}

	c.leaf = next
	c.cellIndex = 0
	if next.NumCells() == 0 {
		c.endOfTable = true
	}
	return nil
}

// EndOfTable reports whether the cursor has been advanced past the last
// cell.
func (c *Cursor) EndOfTable() bool { return c.endOfTable }

// Insert delegates to the owning table's B-tree. A split invalidates
// every cursor on the tree; this cursor must not be
// reused afterwards — callers that need a fresh position call Find again.
func (c *Cursor) Insert(key uint64, data []byte) error {
	return c.table.tree.Insert(key, data)
}
