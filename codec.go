package kdb

import "encoding/binary"

// ColumnType enumerates the column types the record codec supports.
type ColumnType uint8

const (
	Integer ColumnType = iota // 8-byte unsigned, little-endian
	Text                      // length-prefixed with a u16
)

// Column describes one column of a table's schema.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Schema is the caller-supplied, ordered column list a table's rows are
// encoded and decoded against. The first column is always the primary
// key and must be a non-nullable Integer — its encoded value becomes a
// cell's key and is not repeated in the cell's data.
type Schema struct {
	Columns []Column
}

// maxDataColumns bounds the columns after the primary key: their
// nullability is tracked in a single leading bitmap byte.
const maxDataColumns = 8

// Validate checks that row matches the schema's column count and types,
// returning ErrSchemaMismatch otherwise.
func (s Schema) Validate(row []Value) error {
	if len(row) != len(s.Columns) {
		return ErrSchemaMismatch
	}
	if len(s.Columns) == 0 || s.Columns[0].Type != Integer || s.Columns[0].Nullable {
		return ErrSchemaMismatch
	}
	if len(s.Columns)-1 > maxDataColumns {
		return ErrSchemaMismatch
	}
	for i, col := range s.Columns {
		v := row[i]
		if v.Kind == KindNull {
			if i == 0 || !col.Nullable {
				return ErrSchemaMismatch
			}
			continue
		}
		switch col.Type {
		case Integer:
			if v.Kind != KindInt {
				return ErrSchemaMismatch
			}
		case Text:
			if v.Kind != KindText {
				return ErrSchemaMismatch
			}
		default:
			return ErrSchemaMismatch
		}
	}
	return nil
}

// ValueKind tags the dynamic type carried by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindInt
	KindText
)

// Value is a single cell of a row, tagged by ValueKind.
type Value struct {
	Kind ValueKind
	Int  uint64
	Text string
}

// IntValue constructs an Integer Value.
func IntValue(v uint64) Value { return Value{Kind: KindInt, Int: v} }

// TextValue constructs a Text Value.
func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }

// NullValue constructs a null Value.
func NullValue() Value { return Value{Kind: KindNull} }

// Row is a fully decoded record, in schema column order.
type Row []Value

// EncodeRow encodes row against schema, returning the primary-key value
// that becomes a cell's key and the byte-addressable body that becomes a
// cell's data.
func EncodeRow(schema Schema, row []Value) (key uint64, data []byte, err error) {
	if err := schema.Validate(row); err != nil {
		return 0, nil, err
	}

	key = row[0].Int

	var bitmap uint8
	encoded := make([][]byte, 0, len(row)-1)
	for i := 1; i < len(row); i++ {
		v := row[i]
		if v.Kind == KindNull {
			bitmap |= 1 << uint(i-1)
			encoded = append(encoded, nil)
			continue
		}
		switch schema.Columns[i].Type {
		case Integer:
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint64(buf, v.Int)
			encoded = append(encoded, buf)
		case Text:
			if len(v.Text) > 0xFFFF {
				return 0, nil, ErrOverflow
			}
			buf := make([]byte, 2+len(v.Text))
			binary.LittleEndian.PutUint16(buf, uint16(len(v.Text)))
			copy(buf[2:], v.Text)
			encoded = append(encoded, buf)
		default:
			return 0, nil, ErrSchemaMismatch
		}
	}

	size := 1
	for _, b := range encoded {
		size += len(b)
	}
	data = make([]byte, 1, size)
	data[0] = bitmap
	for _, b := range encoded {
		data = append(data, b...)
	}
	return key, data, nil
}

// DecodeRow decodes a cell's key and data back into a Row, driven by
// schema.
func DecodeRow(schema Schema, key uint64, data []byte) (Row, error) {
	if len(schema.Columns) == 0 {
		return nil, ErrSchemaMismatch
	}
	if len(data) < 1 {
		return nil, ErrTruncated
	}

	row := make(Row, len(schema.Columns))
	row[0] = IntValue(key)

	bitmap := data[0]
	off := 1
	for i := 1; i < len(schema.Columns); i++ {
		if bitmap&(1<<uint(i-1)) != 0 {
			row[i] = NullValue()
			continue
		}
		col := schema.Columns[i]
		switch col.Type {
		case Integer:
			if off+8 > len(data) {
				return nil, ErrTruncated
			}
			row[i] = IntValue(binary.LittleEndian.Uint64(data[off:]))
			off += 8
		case Text:
			if off+2 > len(data) {
				return nil, ErrTruncated
			}
			n := int(binary.LittleEndian.Uint16(data[off:]))
			off += 2
			if off+n > len(data) {
				return nil, ErrTruncated
			}
			row[i] = TextValue(string(data[off : off+n]))
			off += n
		default:
			return nil, ErrSchemaMismatch
		}
	}
	return row, nil
}
