package kdb

import (
	"fmt"
	"path/filepath"
	"testing"
)

func BenchmarkInsertAscending(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.kdb")
	db, err := Open(path)
	if err != nil {
		b.Fatalf("open: %v", err)
	}
	defer db.Close()

	table, err := db.CreateTable("t", schemaIDName(), "CREATE TABLE t(id INT, name TEXT)")
	if err != nil {
		b.Fatalf("create table: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		row := Row{IntValue(uint64(i)), TextValue(fmt.Sprintf("row-%d", i))}
		if err := db.Insert(table, row); err != nil {
			b.Fatalf("insert: %v", err)
		}
	}
}

func BenchmarkSelectByPKey(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.kdb")
	db, err := Open(path)
	if err != nil {
		b.Fatalf("open: %v", err)
	}
	defer db.Close()

	table, err := db.CreateTable("t", schemaIDName(), "CREATE TABLE t(id INT, name TEXT)")
	if err != nil {
		b.Fatalf("create table: %v", err)
	}

	const numKeys = 10000
	for i := 0; i < numKeys; i++ {
		row := Row{IntValue(uint64(i)), TextValue(fmt.Sprintf("row-%d", i))}
		if err := db.Insert(table, row); err != nil {
			b.Fatalf("populate: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := uint64((i * 7) % numKeys)
		if _, _, err := db.SelectByPKey(table, key); err != nil {
			b.Fatalf("select: %v", err)
		}
	}
}
