package meta

import "fmt"

// MappingError reports a malformed entity declaration: a missing or
// duplicated primary key, conflicting column names, or a field type with no
// CQL counterpart. It is fatal and never retried.
type MappingError struct {
	Type   string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping %s: %s", e.Type, e.Reason)
}

func mappingErrf(typeName, format string, args ...interface{}) error {
	return &MappingError{Type: typeName, Reason: fmt.Sprintf(format, args...)}
}
