package meta

import (
	"fmt"
	"math/big"
	"net"
	"reflect"
	"time"

	gocql "github.com/apache/cassandra-gocql-driver/v2"
	"github.com/google/uuid"
)

var (
	timeType     = reflect.TypeOf(time.Time{})
	gocqlUUIDTyp = reflect.TypeOf(gocql.UUID{})
	uuidType     = reflect.TypeOf(uuid.UUID{})
	bigIntType   = reflect.TypeOf(big.Int{})
	ipType       = reflect.TypeOf(net.IP{})
	bytesType    = reflect.TypeOf([]byte{})
)

// cqlTypeOf resolves a Go field type to its CQL column type and semantic
// kind. forceSet turns a slice into a set instead of a list. Pointers map to
// the type they point at; a nil pointer value is treated as an absent column.
func cqlTypeOf(t reflect.Type, forceSet bool) (string, Kind, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	// Named types that are not plain scalars in Go but are in CQL.
	if s, ok := scalarCQLType(t); ok {
		return s, KindScalar, nil
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		elem, ok := scalarCQLType(t.Elem())
		if !ok {
			return "", KindScalar, fmt.Errorf("unsupported element type %s", t.Elem())
		}
		if forceSet {
			return fmt.Sprintf("set<%s>", elem), KindSet, nil
		}
		return fmt.Sprintf("list<%s>", elem), KindList, nil

	case reflect.Map:
		key, ok := scalarCQLType(t.Key())
		if !ok {
			return "", KindScalar, fmt.Errorf("unsupported map key type %s", t.Key())
		}
		val, ok := scalarCQLType(t.Elem())
		if !ok {
			return "", KindScalar, fmt.Errorf("unsupported map value type %s", t.Elem())
		}
		return fmt.Sprintf("map<%s, %s>", key, val), KindMap, nil
	}

	return "", KindScalar, fmt.Errorf("unsupported type %s", t)
}

// scalarCQLType maps a Go type to a CQL scalar type name.
func scalarCQLType(t reflect.Type) (string, bool) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t {
	case timeType:
		return "timestamp", true
	case gocqlUUIDTyp, uuidType:
		return "uuid", true
	case bigIntType:
		return "varint", true
	case ipType:
		return "inet", true
	case bytesType:
		return "blob", true
	}

	switch t.Kind() {
	case reflect.String:
		return "text", true
	case reflect.Bool:
		return "boolean", true
	case reflect.Int8:
		return "tinyint", true
	case reflect.Int16:
		return "smallint", true
	case reflect.Int32:
		return "int", true
	case reflect.Int, reflect.Int64:
		return "bigint", true
	case reflect.Float32:
		return "float", true
	case reflect.Float64:
		return "double", true
	}
	return "", false
}
