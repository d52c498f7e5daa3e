package docent

import "time"

// SoftDelete marks an entity as soft-deletable. Embed it alongside
// Document; Delete then stamps deleted_at instead of removing the row,
// and every query built from the collection's Find excludes deleted
// documents unless asked otherwise via FindDeleted or FindWithDeleted.
type SoftDelete struct {
	DeletedAt *time.Time `docent:"deleted_at" json:"deleted_at,omitempty"`
}

// Deleted reports whether the document is currently soft-deleted.
func (s *SoftDelete) Deleted() bool { return s.DeletedAt != nil }

func (s *SoftDelete) setDeletedAt(t *time.Time) { s.DeletedAt = t }

type softDeletable interface {
	Deleted() bool
	setDeletedAt(t *time.Time)
}
