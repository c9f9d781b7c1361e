package builder

import (
	"fmt"

	"github.com/axonops/cqlmapper/meta"
)

// UnsupportedOperationError reports a collection operation applied to a
// column whose semantic type cannot support it, e.g. prepend on a set. It is
// raised before any statement is built, so no network call is made.
type UnsupportedOperationError struct {
	Op     string
	Column string
	Kind   meta.Kind
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("cannot %s on %s column %q", e.Op, e.Kind, e.Column)
}

func unsupported(op string, f *meta.Field) error {
	return &UnsupportedOperationError{Op: op, Column: f.Column, Kind: f.Kind}
}

// fieldFor resolves a property name against entity metadata.
func fieldFor(e *meta.Entity, property string) (*meta.Field, error) {
	f, ok := e.FieldByName(property)
	if !ok {
		return nil, &meta.MappingError{
			Type:   e.GoType().Name(),
			Reason: fmt.Sprintf("no mapped field %q", property),
		}
	}
	return f, nil
}
