// Package builder turns entity metadata plus an intent (save, delete,
// collection mutation, single-value update) into executable statements.
// All functions are pure: they read metadata and produce a
// driver.Statement with every value bound to a placeholder, never inlined.
package builder

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/axonops/cqlmapper/driver"
	"github.com/axonops/cqlmapper/meta"
)

// qualify renders the keyspace-qualified table name used in statement text
// and as the prepared-statement cache key prefix.
func qualify(keyspace, table string) string {
	if keyspace == "" {
		return table
	}
	return keyspace + "." + table
}

// Save builds the write for a full entity instance.
//
// Without a version field this is a plain upsert over all non-nil fields.
// With one, the write is conditional: a zero version value produces
// INSERT ... IF NOT EXISTS storing the version as given, a nonzero value
// produces UPDATE ... SET <ver>=expected+1 ... IF <ver>=expected. The
// caller inspects the applied flag on the result.
func Save(e *meta.Entity, instance interface{}, keyspace string, opts *driver.WriteOptions) (*driver.Statement, error) {
	if e.HasVersion() {
		return saveVersioned(e, instance, keyspace, opts)
	}
	return saveUpsert(e, instance, keyspace, opts)
}

func saveUpsert(e *meta.Entity, instance interface{}, keyspace string, opts *driver.WriteOptions) (*driver.Statement, error) {
	cols, values := boundColumns(e, instance)

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		qualify(keyspace, e.Table), strings.Join(cols, ", "), placeholders(len(cols)))
	values = appendUsing(&b, values, opts)

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

func saveVersioned(e *meta.Entity, instance interface{}, keyspace string, opts *driver.WriteOptions) (*driver.Statement, error) {
	ver := e.Version()
	expected := reflect.ValueOf(ver.ValueOf(instance)).Int()

	if expected == 0 {
		// New entity: creation is guarded by the store, not by a compare.
		cols, values := boundColumns(e, instance)
		var b strings.Builder
		fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) IF NOT EXISTS",
			qualify(keyspace, e.Table), strings.Join(cols, ", "), placeholders(len(cols)))
		values = appendUsing(&b, values, opts)

		stmt := &driver.Statement{
			Text:     b.String(),
			Values:   values,
			Keyspace: keyspace,
			Table:    e.Table,
			Kind:     driver.KindConditional,
		}
		driver.ApplyWrite(stmt, opts)
		return stmt, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s", qualify(keyspace, e.Table))
	values := appendUsing(&b, nil, opts)

	var sets []string
	for _, f := range e.Fields {
		if f.IsKey || f.IsVersion {
			continue
		}
		v := f.ValueOf(instance)
		if v == nil {
			continue
		}
		sets = append(sets, f.Column+" = ?")
		values = append(values, v)
	}
	sets = append(sets, ver.Column+" = ?")
	values = append(values, expected+1)

	fmt.Fprintf(&b, " SET %s WHERE %s = ? IF %s = ?",
		strings.Join(sets, ", "), e.Key().Column, ver.Column)
	values = append(values, e.KeyValueOf(instance), expected)

	stmt := &driver.Statement{
		Text:     b.String(),
		Values:   values,
		Keyspace: keyspace,
		Table:    e.Table,
		Kind:     driver.KindConditional,
	}
	driver.ApplyWrite(stmt, opts)
	return stmt, nil
}

// Select builds the primary-key read for an entity type.
func Select(e *meta.Entity, id interface{}, keyspace string, opts *driver.ReadOptions) *driver.Statement {
	cols := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		cols[i] = f.Column
	}
	stmt := &driver.Statement{
		Text: fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
			strings.Join(cols, ", "), qualify(keyspace, e.Table), e.Key().Column),
		Values:   []interface{}{id},
		Keyspace: keyspace,
		Table:    e.Table,
		Kind:     driver.KindSelect,
	}
	driver.ApplyRead(stmt, opts)
	return stmt
}

// Delete builds the keyed delete for an entity id.
func Delete(e *meta.Entity, id interface{}, keyspace string, opts *driver.WriteOptions) *driver.Statement {
	var b strings.Builder
	fmt.Fprintf(&b, "DELETE FROM %s", qualify(keyspace, e.Table))
	var values []interface{}
	if opts != nil && opts.Timestamp != 0 {
		b.WriteString(" USING TIMESTAMP ?")
		values = append(values, opts.Timestamp)
	}
	fmt.Fprintf(&b, " WHERE %s = ?", e.Key().Column)
	values = append(values, id)

	stmt := &driver.Statement{
		Text:     b.String(),
		Values:   values,
		Keyspace: keyspace,
		Table:    e.Table,
		Kind:     driver.KindWrite,
	}
	driver.ApplyWrite(stmt, opts)
	return stmt
}

// DeleteColumn builds the delete of a single column value.
func DeleteColumn(e *meta.Entity, id interface{}, property, keyspace string, opts *driver.WriteOptions) (*driver.Statement, error) {
	f, err := fieldFor(e, property)
	if err != nil {
		return nil, err
	}
	if f.IsKey {
		return nil, unsupported("delete value", f)
	}
	stmt := &driver.Statement{
		Text: fmt.Sprintf("DELETE %s FROM %s WHERE %s = ?",
			f.Column, qualify(keyspace, e.Table), e.Key().Column),
		Values:   []interface{}{id},
		Keyspace: keyspace,
		Table:    e.Table,
		Kind:     driver.KindWrite,
	}
	driver.ApplyWrite(stmt, opts)
	return stmt, nil
}

// UpdateValue builds the write of a single column. A nil value becomes a
// column delete rather than a no-op write.
func UpdateValue(e *meta.Entity, id interface{}, property string, value interface{}, keyspace string, opts *driver.WriteOptions) (*driver.Statement, error) {
	if value == nil {
		return DeleteColumn(e, id, property, keyspace, opts)
	}
	f, err := fieldFor(e, property)
	if err != nil {
		return nil, err
	}
	if f.IsKey {
		return nil, unsupported("update", f)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s", qualify(keyspace, e.Table))
	values := appendUsing(&b, nil, opts)
	fmt.Fprintf(&b, " SET %s = ? WHERE %s = ?", f.Column, e.Key().Column)
	values = append(values, value, id)

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

// boundColumns collects column names and values for every non-nil field of
// the instance, in declaration order.
func boundColumns(e *meta.Entity, instance interface{}) ([]string, []interface{}) {
	var cols []string
	var values []interface{}
	for _, f := range e.Fields {
		v := f.ValueOf(instance)
		if v == nil {
			continue
		}
		cols = append(cols, f.Column)
		values = append(values, v)
	}
	return cols, values
}

// placeholders renders n comma-separated bind markers.
func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// appendUsing emits the USING TTL/TIMESTAMP clause and its bound values.
// Call order decides placement: between table name and SET for UPDATE,
// trailing the statement for INSERT.
func appendUsing(b *strings.Builder, values []interface{}, opts *driver.WriteOptions) []interface{} {
	if opts == nil || (opts.TTL == 0 && opts.Timestamp == 0) {
		return values
	}
	var parts []string
	if opts.TTL != 0 {
		parts = append(parts, "TTL ?")
		values = append(values, opts.TTL)
	}
	if opts.Timestamp != 0 {
		parts = append(parts, "TIMESTAMP ?")
		values = append(values, opts.Timestamp)
	}
	b.WriteString(" USING " + strings.Join(parts, " AND "))
	return values
}
