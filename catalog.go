package kdb

import "encoding/binary"

// CatalogEntry is one record of the catalog tree: a table's catalog id,
// name, current root PageNum, and the SQL text it was created with.
type CatalogEntry struct {
	Pkey        uint64
	Name        string
	RootPagenum PageNum
	SQLText     string
	Schema      Schema
}

// encodeCatalogEntry serializes everything but Pkey (which is the cell's
// key, not part of its data) into a catalog cell's data body. Layout:
// name (u16-prefixed), root_pagenum (u32), sql_text (u16-prefixed),
// column count (u8), then per column: type (u8), nullable (u8), name
// (u16-prefixed).
func encodeCatalogEntry(e CatalogEntry) []byte {
	buf := make([]byte, 0, 64)
	buf = appendString(buf, e.Name)
	rootBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(rootBuf, uint32(e.RootPagenum))
	buf = append(buf, rootBuf...)
	buf = appendString(buf, e.SQLText)
	buf = append(buf, uint8(len(e.Schema.Columns)))
	for _, col := range e.Schema.Columns {
		buf = append(buf, uint8(col.Type))
		if col.Nullable {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = appendString(buf, col.Name)
	}
	return buf
}

func decodeCatalogEntry(pkey uint64, data []byte) (CatalogEntry, error) {
	e := CatalogEntry{Pkey: pkey}

	name, rest, err := readString(data)
	if err != nil {
		return e, err
	}
	e.Name = name

	if len(rest) < 4 {
		return e, ErrTruncated
	}
	e.RootPagenum = PageNum(binary.LittleEndian.Uint32(rest))
	rest = rest[4:]

	sqlText, rest, err := readString(rest)
	if err != nil {
		return e, err
	}
	e.SQLText = sqlText

	if len(rest) < 1 {
		return e, ErrTruncated
	}
	numCols := int(rest[0])
	rest = rest[1:]

	cols := make([]Column, numCols)
	for i := 0; i < numCols; i++ {
		if len(rest) < 2 {
			return e, ErrTruncated
		}
		cols[i].Type = ColumnType(rest[0])
		cols[i].Nullable = rest[1] != 0
		rest = rest[2:]
		colName, remaining, err := readString(rest)
		if err != nil {
			return e, err
		}
		cols[i].Name = colName
		rest = remaining
	}
	e.Schema = Schema{Columns: cols}
	return e, nil
}

func appendString(buf []byte, s string) []byte {
	lenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBuf, uint16(len(s)))
	buf = append(buf, lenBuf...)
	return append(buf, s...)
}

func readString(data []byte) (string, []byte, error) {
	if len(data) < 2 {
		return "", nil, ErrTruncated
	}
	n := int(binary.LittleEndian.Uint16(data))
	data = data[2:]
	if len(data) < n {
		return "", nil, ErrTruncated
	}
	return string(data[:n]), data[n:], nil
}

// Catalog is the B-tree rooted permanently at page 0, mapping table names
// to their root PageNum. Because that root is pinned at page 0, any split
// of the catalog tree itself is absorbed by swapping the split-off root's
// contents back onto page 0 rather than letting the catalog's logical
// root page number change — see pinCatalogRootAtZero.
type Catalog struct {
	tree   *BTree
	pager  *Pager
	logger Logger
	nextPk uint64
}

// openCatalog constructs the Catalog handle over the pager's page 0 and
// scans it to recover the next unused catalog pkey.
func openCatalog(pager *Pager, logger Logger) (*Catalog, error) {
	c := &Catalog{pager: pager, logger: logger}
	c.tree = OpenBTree(pager, 0, logger, func(newRoot PageNum) error {
		return pinCatalogRootAtZero(c.tree, newRoot)
	})

	entries, err := c.CatalogList()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Pkey >= c.nextPk {
			c.nextPk = e.Pkey + 1
		}
	}
	return c, nil
}

// CatalogLookup scans the catalog for name, returning its entry and
// whether it was found. There is no secondary index on name, so this is
// a linear scan of the catalog tree.
func (c *Catalog) CatalogLookup(name string) (CatalogEntry, bool, error) {
	entries, err := c.CatalogList()
	if err != nil {
		return CatalogEntry{}, false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, true, nil
		}
	}
	return CatalogEntry{}, false, nil
}

// CatalogCreate allocates a fresh catalog pkey and inserts a new catalog
// record naming a table rooted at rootPagenum. Fails with ErrTableExists
// if name is already registered.
func (c *Catalog) CatalogCreate(name, sqlText string, schema Schema, rootPagenum PageNum) (uint64, error) {
	if _, found, err := c.CatalogLookup(name); err != nil {
		return 0, err
	} else if found {
		return 0, ErrTableExists
	}

	pkey := c.nextPk
	c.nextPk++

	entry := CatalogEntry{Pkey: pkey, Name: name, RootPagenum: rootPagenum, SQLText: sqlText, Schema: schema}
	data := encodeCatalogEntry(entry)
	if err := c.tree.Insert(pkey, data); err != nil {
		return 0, err
	}

	c.logger.Info("catalog entry created", "name", name, "pkey", pkey, "root", rootPagenum)
	return pkey, nil
}

// CatalogUpdateRoot rewrites name's recorded root PageNum after its
// table's tree splits its own root.
func (c *Catalog) CatalogUpdateRoot(name string, newRoot PageNum) error {
	entry, found, err := c.CatalogLookup(name)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	entry.RootPagenum = newRoot

	if err := c.deleteCatalogCell(entry.Pkey); err != nil {
		return err
	}
	if err := c.tree.Insert(entry.Pkey, encodeCatalogEntry(entry)); err != nil {
		return err
	}
	c.logger.Info("catalog root updated", "name", name, "newRoot", newRoot)
	return nil
}

// deleteCatalogCell removes the catalog cell keyed by pkey in place. The
// catalog tree never shrinks nodes back together on removal, and this
// engine never deletes table rows either, so the only catalog mutation
// that needs to remove a cell at all is a root-PageNum rewrite, which
// immediately reinserts it.
func (c *Catalog) deleteCatalogCell(pkey uint64) error {
	leaf, err := c.tree.findLeaf(pkey)
	if err != nil {
		return err
	}
	idx, exact := leaf.FindCell(pkey)
	if !exact {
		return ErrNotFound
	}
	numCells := leaf.NumCells()
	for i := idx; i < numCells-1; i++ {
		leaf.page.setCellPointer(i, leaf.page.cellPointer(i+1))
	}
	leaf.page.setNumCells(uint16(numCells - 1))
	return nil
}

// CatalogList returns every catalog entry, in pkey order, by walking the
// catalog tree's leaves left to right.
func (c *Catalog) CatalogList() ([]CatalogEntry, error) {
	var out []CatalogEntry

	leaf, err := c.tree.leftmostLeaf()
	if err != nil {
		return nil, err
	}
	for leaf != nil {
		for i := 0; i < leaf.NumCells(); i++ {
			key, data := leaf.Cell(i)
			entry, err := decodeCatalogEntry(key, data)
			if err != nil {
				return nil, err
			}
			out = append(out, entry)
		}
		leaf, err = c.tree.nextLeafAfter(leaf)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// pinCatalogRootAtZero absorbs a split of the catalog tree's root. The
// generic split machinery in btree.go always allocates a brand new page
// for a fresh root and leaves the pre-split root's content (now the left
// half) on its original page; for every other tree that is exactly what
// is wanted, but the catalog's root must stay physically at page 0. This
// swaps the two: the left half's content moves onto the page the new
// root was built on, and the new root's content is copied onto page 0,
// with its single entry's child pointer redirected accordingly.
func pinCatalogRootAtZero(tree *BTree, newRootPage PageNum) error {
	if newRootPage == 0 {
		return nil
	}

	pager := tree.pager

	rootPage, err := pager.GetPage(newRootPage)
	if err != nil {
		return err
	}
	rootNode := wrapNode(rootPage)
	_, rootKey := rootNode.EntryAt(0)
	rootRight := rootNode.RightChild()

	zeroPage, err := pager.GetPage(0)
	if err != nil {
		return err
	}
	leftNode := wrapNode(zeroPage)
	leftWasLeaf := leftNode.IsLeaf()

	var leafKeys []uint64
	var leafData [][]byte
	var entryChildren []PageNum
	var entryKeys []uint64
	var leftRightChild PageNum

	if leftWasLeaf {
		for i := 0; i < leftNode.NumCells(); i++ {
			k, d := leftNode.Cell(i)
			leafKeys = append(leafKeys, k)
			leafData = append(leafData, append([]byte(nil), d...))
		}
	} else {
		for i := 0; i < leftNode.NumKeys(); i++ {
			c, k := leftNode.EntryAt(i)
			entryChildren = append(entryChildren, c)
			entryKeys = append(entryKeys, k)
		}
		leftRightChild = leftNode.RightChild()
	}

	if leftWasLeaf {
		relocated := InitLeaf(rootPage, 0, false)
		for i := range leafKeys {
			relocated.InsertCell(i, leafKeys[i], leafData[i])
		}
	} else {
		relocated := InitInternal(rootPage, 0, false)
		for i := range entryChildren {
			relocated.InsertEntry(entryChildren[i], entryKeys[i])
			if err := tree.reparentChild(entryChildren[i], newRootPage); err != nil {
				return err
			}
		}
		relocated.SetRightChild(leftRightChild)
		if err := tree.reparentChild(leftRightChild, newRootPage); err != nil {
			return err
		}
	}

	newRootAtZero := InitInternal(zeroPage, 0, true)
	newRootAtZero.InsertEntry(newRootPage, rootKey)
	newRootAtZero.SetRightChild(rootRight)
	if err := tree.reparentChild(rootRight, 0); err != nil {
		return err
	}

	tree.root = 0
	return nil
}
