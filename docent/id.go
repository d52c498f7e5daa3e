package docent

import (
	"fmt"

	"github.com/google/uuid"
)

// ID is a document identifier. Its canonical form is a UUID string; the
// zero value means "not yet assigned". JSON and display surfaces see the
// plain string, store-bound surfaces keep the ID type.
type ID string

// NewID generates a fresh identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// ParseID validates s as an identifier, failing with ErrInvalidID when it
// is not a canonical UUID string.
func ParseID(s string) (ID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID(s), nil
}

func (id ID) String() string { return string(id) }

// IsZero reports whether the identifier has not been assigned.
func (id ID) IsZero() bool { return id == "" }

// coerceID accepts the native ID type or its string form. Anything else,
// including a malformed string, fails with ErrInvalidID.
func coerceID(v any) (ID, error) {
	switch t := v.(type) {
	case ID:
		if t.IsZero() {
			return "", fmt.Errorf("%w: empty identifier", ErrInvalidID)
		}
		return t, nil
	case string:
		return ParseID(t)
	default:
		return "", fmt.Errorf("%w: cannot use %T as identifier", ErrInvalidID, v)
	}
}
