package builder

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/axonops/cqlmapper/driver"
	"github.com/axonops/cqlmapper/meta"
)

// Append builds the add of item(s) to a list, set or map column. A single
// item is wrapped into the column's collection shape; slices and maps pass
// through as-is.
func Append(e *meta.Entity, id interface{}, property string, item interface{}, keyspace string, opts *driver.WriteOptions) (*driver.Statement, error) {
	f, err := fieldFor(e, property)
	if err != nil {
		return nil, err
	}
	if !f.Kind.IsCollection() {
		return nil, unsupported("append", f)
	}
	if f.Kind == meta.KindMap && reflect.ValueOf(item).Kind() != reflect.Map {
		return nil, unsupported("append a non-map value", f)
	}
	return collectionUpdate(e, f, id, keyspace, opts,
		fmt.Sprintf("%s = %s + ?", f.Column, f.Column), wrapItem(f, item))
}

// Prepend builds the add of item(s) at the beginning of a list column.
func Prepend(e *meta.Entity, id interface{}, property string, item interface{}, keyspace string, opts *driver.WriteOptions) (*driver.Statement, error) {
	f, err := fieldFor(e, property)
	if err != nil {
		return nil, err
	}
	if f.Kind != meta.KindList {
		return nil, unsupported("prepend", f)
	}
	return collectionUpdate(e, f, id, keyspace, opts,
		fmt.Sprintf("%s = ? + %s", f.Column, f.Column), wrapItem(f, item))
}

// ReplaceAt builds the replacement of the list element at idx. The index is
// part of the statement shape; an out-of-range index is rejected by the
// store, not here, but a negative one never leaves the process.
func ReplaceAt(e *meta.Entity, id interface{}, property string, item interface{}, idx int, keyspace string, opts *driver.WriteOptions) (*driver.Statement, error) {
	f, err := fieldFor(e, property)
	if err != nil {
		return nil, err
	}
	if f.Kind != meta.KindList {
		return nil, unsupported("replace at index", f)
	}
	if idx < 0 {
		return nil, unsupported(fmt.Sprintf("replace at negative index %d", idx), f)
	}
	return collectionUpdate(e, f, id, keyspace, opts,
		fmt.Sprintf("%s[%d] = ?", f.Column, idx), item)
}

// Remove builds the removal of item(s) from a collection column: discard
// for lists and sets, key removal for maps.
func Remove(e *meta.Entity, id interface{}, property string, item interface{}, keyspace string, opts *driver.WriteOptions) (*driver.Statement, error) {
	f, err := fieldFor(e, property)
	if err != nil {
		return nil, err
	}
	switch f.Kind {
	case meta.KindList, meta.KindSet:
		return collectionUpdate(e, f, id, keyspace, opts,
			fmt.Sprintf("%s = %s - ?", f.Column, f.Column), wrapItem(f, item))
	case meta.KindMap:
		stmt := &driver.Statement{
			Text: fmt.Sprintf("DELETE %s[?] FROM %s WHERE %s = ?",
				f.Column, qualify(keyspace, e.Table), e.Key().Column),
			Values:   []interface{}{item, id},
			Keyspace: keyspace,
			Table:    e.Table,
			Kind:     driver.KindWrite,
		}
		driver.ApplyWrite(stmt, opts)
		return stmt, nil
	default:
		return nil, unsupported("remove", f)
	}
}

// collectionUpdate renders UPDATE <table> [USING ...] SET <setClause>
// WHERE <key> = ? with the collection operand bound first.
func collectionUpdate(e *meta.Entity, f *meta.Field, id interface{}, keyspace string, opts *driver.WriteOptions, setClause string, operand interface{}) (*driver.Statement, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s", qualify(keyspace, e.Table))
	values := appendUsing(&b, nil, opts)
	fmt.Fprintf(&b, " SET %s WHERE %s = ?", setClause, e.Key().Column)
	values = append(values, operand, id)

	stmt := &driver.Statement{
		Text:     b.String(),
		Values:   values,
		Keyspace: keyspace,
		Table:    e.Table,
		Kind:     driver.KindWrite,
	}
	driver.ApplyWrite(stmt, opts)
	return stmt, nil
}

// wrapItem lifts a single item into the collection shape the column
// expects. Slices, arrays and maps are taken as already-shaped operands.
func wrapItem(f *meta.Field, item interface{}) interface{} {
	if item == nil {
		return nil
	}
	switch reflect.ValueOf(item).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return item
	}
	return []interface{}{item}
}
