package mapper

import (
	"fmt"
	"reflect"

	"github.com/axonops/cqlmapper/driver"
	"github.com/axonops/cqlmapper/meta"
)

// populate copies row values into the entity's mapped fields. Columns
// absent from the row, or null, zero the corresponding field so a reused
// destination never keeps stale values.
func populate(e *meta.Entity, entity interface{}, row driver.Row) error {
	for _, f := range e.Fields {
		v, ok := row[f.Column]
		if !ok || v == nil {
			f.SetValue(entity, nil)
			continue
		}
		f.SetValue(entity, v)
	}
	return nil
}

// destMeta resolves the element metadata of a query destination, which must
// be a pointer to a slice of mapped structs (*[]T or *[]*T).
func (s *Session) destMeta(dest interface{}) (*meta.Entity, bool, error) {
	t := reflect.TypeOf(dest)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Slice {
		return nil, false, fmt.Errorf("mapper: query destination must be a pointer to a slice, got %T", dest)
	}
	elem := t.Elem().Elem()
	elemIsPtr := elem.Kind() == reflect.Ptr
	if elemIsPtr {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		return nil, false, fmt.Errorf("mapper: query destination elements must be structs, got %s", elem.Kind())
	}
	e, err := s.registry.Get(elem)
	if err != nil {
		return nil, false, err
	}
	return e, elemIsPtr, nil
}

// fillSlice appends one populated instance per row to the destination
// slice.
func fillSlice(e *meta.Entity, dest interface{}, elemIsPtr bool, rows []driver.Row) error {
	sv := reflect.ValueOf(dest).Elem()
	for _, row := range rows {
		inst := e.New() // *T
		if err := populate(e, inst, row); err != nil {
			return err
		}
		if elemIsPtr {
			sv.Set(reflect.Append(sv, reflect.ValueOf(inst)))
		} else {
			sv.Set(reflect.Append(sv, reflect.ValueOf(inst).Elem()))
		}
	}
	return nil
}
