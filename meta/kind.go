package meta

// Kind is the semantic data type of a mapped column, resolved once at
// metadata-build time. Collection operations are checked against it before
// any statement is built.
type Kind int

const (
	// KindScalar is a single-valued column.
	KindScalar Kind = iota
	// KindList is an ordered collection column.
	KindList
	// KindSet is an unordered unique collection column.
	KindSet
	// KindMap is a key/value collection column.
	KindMap
)

// String returns the kind name as used in error messages.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// IsCollection reports whether the kind is a list, set or map.
func (k Kind) IsCollection() bool {
	return k == KindList || k == KindSet || k == KindMap
}
