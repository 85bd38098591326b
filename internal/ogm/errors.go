package ogm

import "errors"

var (
	// ErrRequiredConstraint is returned when a required property has no
	// value and no default.
	ErrRequiredConstraint = errors.New("required constraint violated")
	// ErrUniqueConstraint is returned when the pre-write check finds another
	// node or edge holding the same value for a unique property.
	ErrUniqueConstraint = errors.New("unique constraint violated")
	// ErrStoreConstraint is returned when the store rejects a write that
	// passed the pre-write checks, typically a concurrent duplicate.
	ErrStoreConstraint = errors.New("store constraint violated")
	// ErrRelationship covers direction, endpoint type, self-loop and
	// cardinality violations, and result types that cannot be resolved.
	ErrRelationship = errors.New("relationship error")
	// ErrNode is returned for malformed query arguments.
	ErrNode = errors.New("node error")
	// ErrProperty is returned for undeclared properties and values that
	// cannot be stored.
	ErrProperty = errors.New("property error")
	// ErrNotFound is returned by single-instance lookups that match nothing.
	ErrNotFound = errors.New("not found")
	// ErrSchema is returned when a type declaration is invalid.
	ErrSchema = errors.New("schema error")
)
