// Package meta derives table and column metadata from entity struct
// declarations. Metadata is built once per type, cached for the process
// lifetime, and never mutated afterwards except for the synced flag
// maintained by the schema synchronizer.
//
// Mapping is declared with the `cql` struct tag:
//
//	type User struct {
//		ID      gocql.UUID `cql:"id,key"`
//		Name    string     `cql:"name"`
//		Tags    []string   `cql:"tags,set,index"`
//		Scores  []int      `cql:"scores"`          // list<bigint>
//		Version int64      `cql:"version,version"` // optimistic lock column
//	}
//
// An empty column name derives snake_case from the field name. `cql:"-"`
// excludes a field. The table name defaults to snake_case of the struct
// name; implement Tabler to override it, Keyspacer to pin a keyspace.
package meta

import (
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/go-openapi/inflect"
)

// Tabler overrides the derived table name for an entity.
type Tabler interface {
	TableName() string
}

// Keyspacer pins an entity to a keyspace instead of the session default.
type Keyspacer interface {
	Keyspace() string
}

const tagName = "cql"

// Field describes one mapped column of an entity.
type Field struct {
	// Name is the Go struct field name.
	Name string
	// Column is the CQL column name.
	Column string
	// CQLType is the rendered column type, e.g. "text" or "list<bigint>".
	CQLType string
	// Kind is the semantic type checked against collection operations.
	Kind Kind
	// IsKey marks the single primary-key column.
	IsKey bool
	// IsVersion marks the optimistic-lock column.
	IsVersion bool
	// Indexed requests a secondary index during schema sync.
	Indexed bool

	index int
	typ   reflect.Type
}

// GoType returns the declared Go type of the field.
func (f *Field) GoType() reflect.Type { return f.typ }

// ValueOf extracts the field value from an entity instance. Nil pointers,
// slices and maps come back as untyped nil.
func (f *Field) ValueOf(entity interface{}) interface{} {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	fv := v.Field(f.index)
	switch fv.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
		if fv.IsNil() {
			return nil
		}
		if fv.Kind() == reflect.Ptr {
			return fv.Elem().Interface()
		}
	}
	return fv.Interface()
}

// SetValue stores a value into the field of an entity instance, which must
// be addressable (a pointer to the struct). A nil value zeroes the field.
func (f *Field) SetValue(entity, value interface{}) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	fv := v.Field(f.index)
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return
	}
	rv := reflect.ValueOf(value)
	if fv.Kind() == reflect.Ptr {
		p := reflect.New(fv.Type().Elem())
		p.Elem().Set(rv.Convert(fv.Type().Elem()))
		fv.Set(p)
		return
	}
	if rv.Type() != fv.Type() && rv.CanConvert(fv.Type()) {
		rv = rv.Convert(fv.Type())
	}
	fv.Set(rv)
}

// Entity is the metadata for one entity type: its table, columns, primary
// key and version field. Instances are immutable after construction apart
// from the synced flag.
type Entity struct {
	// Table is the remote table name.
	Table string
	// KeyspaceOverride is non-empty when the entity pins its keyspace.
	KeyspaceOverride string
	// Fields are the mapped columns in declaration order.
	Fields []*Field

	goType   reflect.Type
	key      *Field
	version  *Field
	byName   map[string]*Field
	byColumn map[string]*Field
	synced   atomic.Bool
}

// GoType returns the struct type the metadata was built from.
func (e *Entity) GoType() reflect.Type { return e.goType }

// Key returns the primary-key field.
func (e *Entity) Key() *Field { return e.key }

// Version returns the optimistic-lock field, or nil.
func (e *Entity) Version() *Field { return e.version }

// HasVersion reports whether the entity carries an optimistic-lock column.
func (e *Entity) HasVersion() bool { return e.version != nil }

// FieldByName looks a field up by Go field name or by column name.
func (e *Entity) FieldByName(name string) (*Field, bool) {
	if f, ok := e.byName[name]; ok {
		return f, true
	}
	f, ok := e.byColumn[name]
	return f, ok
}

// Synced reports whether schema sync has completed for this entity in the
// current process.
func (e *Entity) Synced() bool { return e.synced.Load() }

// MarkSynced records a successful schema sync.
func (e *Entity) MarkSynced() { e.synced.Store(true) }

// ResetSynced clears the synced flag so the next operation re-runs sync.
func (e *Entity) ResetSynced() { e.synced.Store(false) }

// KeyValueOf extracts the primary key value from an entity instance.
func (e *Entity) KeyValueOf(entity interface{}) interface{} {
	return e.key.ValueOf(entity)
}

// New returns a new addressable instance of the entity type as a pointer.
func (e *Entity) New() interface{} {
	return reflect.New(e.goType).Interface()
}

// build introspects a struct type into Entity metadata. It fails with a
// MappingError when the declaration cannot map to exactly one table with
// exactly one primary-key column.
func build(t reflect.Type) (*Entity, error) {
	name := t.Name()
	if name == "" {
		name = t.String()
	}

	e := &Entity{
		Table:    inflect.Underscore(name),
		goType:   t,
		byName:   make(map[string]*Field),
		byColumn: make(map[string]*Field),
	}

	inst := reflect.New(t).Interface()
	if tn, ok := inst.(Tabler); ok {
		e.Table = tn.TableName()
	}
	if ks, ok := inst.(Keyspacer); ok {
		e.KeyspaceOverride = ks.Keyspace()
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" { // unexported
			continue
		}
		tag := sf.Tag.Get(tagName)
		if tag == "-" {
			continue
		}

		column := ""
		var opts []string
		if tag != "" {
			parts := strings.Split(tag, ",")
			column = strings.TrimSpace(parts[0])
			opts = parts[1:]
		}
		if column == "" {
			column = inflect.Underscore(sf.Name)
		}

		f := &Field{
			Name:   sf.Name,
			Column: column,
			index:  i,
			typ:    sf.Type,
		}
		forceSet := false
		for _, opt := range opts {
			switch strings.TrimSpace(opt) {
			case "key":
				f.IsKey = true
			case "version":
				f.IsVersion = true
			case "index":
				f.Indexed = true
			case "set":
				forceSet = true
			case "":
			default:
				return nil, mappingErrf(name, "field %s: unknown tag option %q", sf.Name, opt)
			}
		}

		cqlType, kind, err := cqlTypeOf(sf.Type, forceSet)
		if err != nil {
			return nil, mappingErrf(name, "field %s: %v", sf.Name, err)
		}
		f.CQLType = cqlType
		f.Kind = kind

		if f.IsKey && f.Kind.IsCollection() {
			return nil, mappingErrf(name, "field %s: primary key cannot be a collection", sf.Name)
		}
		if f.IsVersion {
			switch sf.Type.Kind() {
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			default:
				return nil, mappingErrf(name, "field %s: version field must be an integer", sf.Name)
			}
		}

		if _, dup := e.byColumn[column]; dup {
			return nil, mappingErrf(name, "column %q mapped by more than one field", column)
		}

		if f.IsKey {
			if e.key != nil {
				return nil, mappingErrf(name, "more than one primary key field (composite keys are not supported)")
			}
			e.key = f
		}
		if f.IsVersion {
			if e.version != nil {
				return nil, mappingErrf(name, "more than one version field")
			}
			e.version = f
		}

		e.Fields = append(e.Fields, f)
		e.byName[f.Name] = f
		e.byColumn[column] = f
	}

	if e.key == nil {
		return nil, mappingErrf(name, "no primary key field declared")
	}
	if len(e.Fields) == 0 {
		return nil, mappingErrf(name, "no mapped fields")
	}
	return e, nil
}
