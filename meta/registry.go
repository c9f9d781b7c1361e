package meta

import (
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry caches entity metadata per Go type. The first caller for a type
// pays the introspection cost; concurrent first calls are collapsed so only
// one build runs and every caller sees the same instance.
//
// A process-wide instance backs Default; tests can construct isolated
// registries and inject them into a session.
type Registry struct {
	entities sync.Map // reflect.Type -> *Entity
	group    singleflight.Group
}

// NewRegistry returns an empty metadata registry.
func NewRegistry() *Registry {
	return &Registry{}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Get returns the metadata for the given entity, building and caching it on
// first use. The argument may be an entity instance, a pointer to one, or a
// reflect.Type.
func (r *Registry) Get(v interface{}) (*Entity, error) {
	t, err := structTypeOf(v)
	if err != nil {
		return nil, err
	}

	if e, ok := r.entities.Load(t); ok {
		return e.(*Entity), nil
	}

	key := t.PkgPath() + "." + t.String()
	res, err, _ := r.group.Do(key, func() (interface{}, error) {
		if e, ok := r.entities.Load(t); ok {
			return e, nil
		}
		e, err := build(t)
		if err != nil {
			return nil, err
		}
		r.entities.Store(t, e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*Entity), nil
}

// structTypeOf resolves the argument to the underlying struct type.
func structTypeOf(v interface{}) (reflect.Type, error) {
	var t reflect.Type
	switch x := v.(type) {
	case reflect.Type:
		t = x
	case nil:
		return nil, fmt.Errorf("meta: nil entity")
	default:
		t = reflect.TypeOf(v)
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("meta: entity must be a struct, got %s", t.Kind())
	}
	return t, nil
}
