package kdb

// DB is a handle on one open kdb file. It is not safe for concurrent use
// from multiple goroutines: the engine is single-threaded cooperative and
// performs no internal synchronization; callers that need concurrent
// access must serialize it themselves.
type DB struct {
	pager   *Pager
	catalog *Catalog
	logger  Logger
	closed  bool
}

// Open opens or creates the kdb file at path.
func Open(path string, opts ...Option) (*DB, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	pager, err := openPager(path, o)
	if err != nil {
		return nil, err
	}

	catalog, err := openCatalog(pager, o.logger)
	if err != nil {
		pager.Close()
		return nil, err
	}

	return &DB{pager: pager, catalog: catalog, logger: o.logger}, nil
}

// Table is a handle on one table's tree, identified by its catalog name.
// Its root PageNum is not stored on the handle itself; it is looked up
// through the catalog on each open and held by the table's BTree, which
// updates it when the root splits and persists the new root to the
// catalog through its root-change callback, so the handle stays valid
// across root splits without the caller doing anything.
type Table struct {
	db     *DB
	name   string
	schema Schema
	tree   *BTree
}

// Name returns the table's catalog name.
func (t *Table) Name() string { return t.name }

// Schema returns the table's column schema.
func (t *Table) Schema() Schema { return t.schema }

// CreateTable registers a new table with the given schema and creation
// SQL text, and allocates an empty leaf as its root. Fails with
// ErrTableExists if name is already registered.
func (db *DB) CreateTable(name string, schema Schema, sqlText string) (*Table, error) {
	if db.closed {
		return nil, ErrClosed
	}
	if len(schema.Columns) == 0 || schema.Columns[0].Type != Integer {
		return nil, ErrSchemaMismatch
	}

	rootNum, rootPage, err := db.pager.NewPage()
	if err != nil {
		return nil, err
	}
	InitLeaf(rootPage, rootNum, true)

	if _, err := db.catalog.CatalogCreate(name, sqlText, schema, rootNum); err != nil {
		return nil, err
	}

	table := &Table{db: db, name: name, schema: schema}
	table.tree = OpenBTree(db.pager, rootNum, db.logger, func(newRoot PageNum) error {
		return db.catalog.CatalogUpdateRoot(name, newRoot)
	})

	db.logger.Info("table created", "name", name, "root", rootNum)
	return table, nil
}

// OpenTable looks up an existing table by name.
func (db *DB) OpenTable(name string) (*Table, bool, error) {
	if db.closed {
		return nil, false, ErrClosed
	}

	entry, found, err := db.catalog.CatalogLookup(name)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	table := &Table{db: db, name: name, schema: entry.Schema}
	table.tree = OpenBTree(db.pager, entry.RootPagenum, db.logger, func(newRoot PageNum) error {
		return db.catalog.CatalogUpdateRoot(name, newRoot)
	})
	return table, true, nil
}

// Insert encodes row against table's schema and inserts it. A duplicate
// primary key fails with ErrDuplicateKey.
func (db *DB) Insert(table *Table, row []Value) error {
	if db.closed {
		return ErrClosed
	}
	key, data, err := EncodeRow(table.schema, row)
	if err != nil {
		return err
	}
	return table.tree.Insert(key, data)
}

// RowIterator is the iterator type returned by SelectAll. Its usage
// pattern (Next then Row) mirrors database/sql's *Rows.
type RowIterator struct {
	table  *Table
	cursor *Cursor
	row    Row
	err    error
	begun  bool
}

// Next advances the iterator, returning false when exhausted or on error.
func (it *RowIterator) Next() bool {
	if it.err != nil {
		return false
	}

	if !it.begun {
		it.begun = true
	} else {
		if err := it.cursor.Advance(); err != nil {
			it.err = err
			return false
		}
	}

	if it.cursor.EndOfTable() {
		return false
	}

	key, data, err := it.cursor.Value()
	if err != nil {
		it.err = err
		return false
	}
	row, err := DecodeRow(it.table.schema, key, data)
	if err != nil {
		it.err = err
		return false
	}
	it.row = row
	return true
}

// Row returns the row the iterator is currently positioned on.
func (it *RowIterator) Row() Row { return it.row }

// Err returns the first error encountered during iteration, if any.
func (it *RowIterator) Err() error { return it.err }

// SelectAll returns an iterator over every row of table in ascending
// primary-key order.
func (db *DB) SelectAll(table *Table) (*RowIterator, error) {
	if db.closed {
		return nil, ErrClosed
	}
	cursor, err := table.FromStart()
	if err != nil {
		return nil, err
	}
	return &RowIterator{table: table, cursor: cursor}, nil
}

// SelectByPKey looks up a single row by primary key.
func (db *DB) SelectByPKey(table *Table, key uint64) (Row, bool, error) {
	if db.closed {
		return nil, false, ErrClosed
	}
	data, found, err := table.tree.Search(key)
	if err != nil || !found {
		return nil, found, err
	}
	row, err := DecodeRow(table.schema, key, data)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// Close flushes all dirty pages and releases the file.
func (db *DB) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true
	return db.pager.Close()
}
