package kdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() Schema {
	return Schema{Columns: []Column{
		{Name: "id", Type: Integer},
		{Name: "name", Type: Text},
		{Name: "age", Type: Integer, Nullable: true},
	}}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	schema := testSchema()
	row := Row{IntValue(1), TextValue("alice"), IntValue(30)}

	key, data, err := EncodeRow(schema, row)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), key)

	decoded, err := DecodeRow(schema, key, data)
	require.NoError(t, err)
	assert.Equal(t, row, decoded)
}

func TestEncodeDecodeWithNull(t *testing.T) {
	schema := testSchema()
	row := Row{IntValue(2), TextValue("bob"), NullValue()}

	key, data, err := EncodeRow(schema, row)
	require.NoError(t, err)

	decoded, err := DecodeRow(schema, key, data)
	require.NoError(t, err)
	assert.Equal(t, row, decoded)
}

func TestEncodeRejectsWrongColumnCount(t *testing.T) {
	schema := testSchema()
	_, _, err := EncodeRow(schema, Row{IntValue(1)})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestEncodeRejectsNullPrimaryKey(t *testing.T) {
	schema := testSchema()
	_, _, err := EncodeRow(schema, Row{NullValue(), TextValue("x"), NullValue()})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestEncodeRejectsWrongType(t *testing.T) {
	schema := testSchema()
	_, _, err := EncodeRow(schema, Row{IntValue(1), IntValue(5), NullValue()})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestDecodeTruncatedData(t *testing.T) {
	schema := testSchema()
	_, err := DecodeRow(schema, 1, []byte{0, 1, 2})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestEncodeRejectsOversizedText(t *testing.T) {
	schema := Schema{Columns: []Column{{Name: "id", Type: Integer}, {Name: "t", Type: Text}}}
	big := make([]byte, 0x10000)
	_, _, err := EncodeRow(schema, Row{IntValue(1), TextValue(string(big))})
	assert.ErrorIs(t, err, ErrOverflow)
}
