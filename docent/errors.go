package docent

import (
	"errors"
	"fmt"
)

// Err is the base error every docent error wraps. errors.Is(err, docent.Err)
// reports whether an error originated in this library.
var Err = errors.New("docent")

var (
	// ErrNotConnected means no connection is registered under the alias.
	ErrNotConnected = fmt.Errorf("%w: not connected", Err)

	// ErrNotFound means a Get or Reload target does not exist.
	ErrNotFound = fmt.Errorf("%w: document not found", Err)

	// ErrMultipleFound means a single-result query matched more than one
	// document.
	ErrMultipleFound = fmt.Errorf("%w: multiple documents found", Err)

	// ErrInvalidID means an identifier string is malformed.
	ErrInvalidID = fmt.Errorf("%w: invalid identifier", Err)

	// ErrInvalidURI means a connection URI cannot be parsed.
	ErrInvalidURI = fmt.Errorf("%w: invalid connection URI", Err)

	// ErrInvalidDatabaseName means the database name extracted from a URI
	// contains disallowed characters.
	ErrInvalidDatabaseName = fmt.Errorf("%w: invalid database name", Err)

	// ErrUnknownScheme means no driver is registered for the URI scheme.
	ErrUnknownScheme = fmt.Errorf("%w: unknown connection scheme", Err)

	// ErrKeyNotSet means encryption was attempted without an active key.
	ErrKeyNotSet = fmt.Errorf("%w: encryption key not set", Err)

	// ErrInvalidKey means an encryption key is malformed.
	ErrInvalidKey = fmt.Errorf("%w: invalid encryption key", Err)

	// ErrValidation means an entity failed validation in a hook or through
	// its Validate method.
	ErrValidation = fmt.Errorf("%w: validation failed", Err)

	// ErrInvalidUpdate means an Update named an unknown field or produced
	// a state that fails validation.
	ErrInvalidUpdate = fmt.Errorf("%w: invalid update", Err)

	// ErrPopulateTooDeep means a dotted populate path exceeds
	// MaxPopulateDepth.
	ErrPopulateTooDeep = fmt.Errorf("%w: populate path too deep", Err)

	// ErrInvalidPopulatePath means a populate path has an empty segment
	// or names a field that is not a reference.
	ErrInvalidPopulatePath = fmt.Errorf("%w: invalid populate path", Err)

	// ErrInvalidPagination means a pagination parameter is out of range.
	ErrInvalidPagination = fmt.Errorf("%w: invalid pagination parameters", Err)

	// ErrEmptyFilter means a bulk Update or Delete refused to run with an
	// empty filter.
	ErrEmptyFilter = fmt.Errorf("%w: refusing to run with an empty filter", Err)

	// ErrUnregisteredType means a reference names an entity type that was
	// never registered.
	ErrUnregisteredType = fmt.Errorf("%w: entity type not registered", Err)
)

// ValidationErrorf builds an error that wraps ErrValidation. Hooks use it
// to surface field-level validation failures.
func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
