package kdb

import (
	"fmt"
	"path/filepath"
	"testing"
)

func TestZZDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.kdb")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	table, err := db.CreateTable("t", schemaIDName(), "CREATE TABLE t(id INT, name TEXT)")
	if err != nil {
		t.Fatal(err)
	}

	key, data, err := EncodeRow(table.schema, Row{IntValue(1), TextValue("a")})
	if err != nil {
		t.Fatal(err)
	}

	pg, _ := table.tree.pager.GetPage(table.tree.root)
	t.Logf("page ptr before insert: %p numcells(raw)=%v", pg, pg.numCells())

	if err := table.tree.Insert(key, data); err != nil {
		t.Fatal(err)
	}

	pg2, _ := table.tree.pager.GetPage(table.tree.root)
	t.Logf("page ptr after insert: %p numcells(raw)=%v same=%v", pg2, pg2.numCells(), pg == pg2)
	fmt.Println("root now", table.tree.root)
}
