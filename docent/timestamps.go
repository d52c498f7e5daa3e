package docent

import "time"

// Timestamps adds automatic created_at / updated_at maintenance to an
// entity. Embed it alongside Document:
//
//	type Post struct {
//		docent.Document
//		docent.Timestamps
//		Title string `docent:"title"`
//	}
//
// The collection stamps CreatedAt on first insert and UpdatedAt on every
// persisted write, after pre-save hooks have run so hooks see the values
// about to be stored. Timestamps never mark a clean document dirty on
// their own.
type Timestamps struct {
	CreatedAt time.Time `docent:"created_at" json:"created_at"`
	UpdatedAt time.Time `docent:"updated_at" json:"updated_at"`
}

func (t *Timestamps) stampCreated(now time.Time) { t.CreatedAt = now }
func (t *Timestamps) stampUpdated(now time.Time) { t.UpdatedAt = now }

// timestamped is the promoted-method view the collection uses to stamp
// entities without knowing their concrete type.
type timestamped interface {
	stampCreated(now time.Time)
	stampUpdated(now time.Time)
}

// nowUTC returns the wall-clock time stamped onto documents. UTC keeps
// stored values comparable across processes; dropping the monotonic
// reading keeps snapshot diffs exact.
func nowUTC() time.Time { return time.Now().UTC() }
