package kdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T) (*Pager, *Catalog) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cat.kdb")
	pager, err := openPager(path, defaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pager.Close() })

	cat, err := openCatalog(pager, discardLogger{})
	require.NoError(t, err)
	return pager, cat
}

func testTableSchema() Schema {
	return Schema{Columns: []Column{{Name: "id", Type: Integer}, {Name: "name", Type: Text}}}
}

func TestCatalogCreateAndLookup(t *testing.T) {
	_, cat := openTestCatalog(t)

	pkey, err := cat.CatalogCreate("t", "CREATE TABLE t(id INT, name TEXT)", testTableSchema(), 5)
	require.NoError(t, err)

	entry, found, err := cat.CatalogLookup("t")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, pkey, entry.Pkey)
	assert.Equal(t, PageNum(5), entry.RootPagenum)
	assert.Equal(t, "CREATE TABLE t(id INT, name TEXT)", entry.SQLText)
	assert.Equal(t, testTableSchema(), entry.Schema)
}

func TestCatalogCreateDuplicateNameFails(t *testing.T) {
	_, cat := openTestCatalog(t)
	_, err := cat.CatalogCreate("t", "sql", testTableSchema(), 1)
	require.NoError(t, err)

	_, err = cat.CatalogCreate("t", "sql", testTableSchema(), 2)
	assert.ErrorIs(t, err, ErrTableExists)
}

func TestCatalogLookupMissingTable(t *testing.T) {
	_, cat := openTestCatalog(t)
	_, found, err := cat.CatalogLookup("nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCatalogUpdateRoot(t *testing.T) {
	_, cat := openTestCatalog(t)
	_, err := cat.CatalogCreate("t", "sql", testTableSchema(), 1)
	require.NoError(t, err)

	require.NoError(t, cat.CatalogUpdateRoot("t", 99))

	entry, found, err := cat.CatalogLookup("t")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, PageNum(99), entry.RootPagenum)
}

func TestCatalogListsMultipleTablesInPkeyOrder(t *testing.T) {
	_, cat := openTestCatalog(t)
	_, err := cat.CatalogCreate("a", "sql a", testTableSchema(), 1)
	require.NoError(t, err)
	_, err = cat.CatalogCreate("b", "sql b", testTableSchema(), 2)
	require.NoError(t, err)
	_, err = cat.CatalogCreate("c", "sql c", testTableSchema(), 3)
	require.NoError(t, err)

	entries, err := cat.CatalogList()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{entries[0].Name, entries[1].Name, entries[2].Name})
}

func TestCatalogSurvivesOwnRootSplit(t *testing.T) {
	_, cat := openTestCatalog(t)

	const n = 200
	for i := 0; i < n; i++ {
		name := "table" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		sql := "CREATE TABLE " + name + "(id INT)"
		_, err := cat.CatalogCreate(name, sql, testTableSchema(), PageNum(i+1))
		require.NoError(t, err)
	}

	entries, err := cat.CatalogList()
	require.NoError(t, err)
	require.Len(t, entries, n)

	assert.Equal(t, PageNum(0), cat.tree.Root(), "catalog root must remain pinned at page 0")

	for i := 0; i < n; i++ {
		name := "table" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		entry, found, err := cat.CatalogLookup(name)
		require.NoError(t, err)
		require.True(t, found, "table %s should be found", name)
		assert.Equal(t, PageNum(i+1), entry.RootPagenum)
	}
}
