package docent

import (
	"strings"
	"time"

	"github.com/docent-db/docent/docent/store"
)

// IndexField names one key of an index and its direction.
type IndexField struct {
	Field string
	Desc  bool
}

// IndexSpec declares a secondary index on an entity's collection. Single
// field indexes are usually declared inline via the `index` struct tag;
// compound and TTL indexes are passed to NewCollection with WithIndexes.
type IndexSpec struct {
	Fields []IndexField
	Unique bool
	Sparse bool
	Name   string
	// ExpireAfter enables TTL expiry on a single time-valued field.
	ExpireAfter time.Duration
}

// model converts the declaration to the store-level form, deriving a
// stable name when none was given.
func (s IndexSpec) model() store.IndexModel {
	m := store.IndexModel{
		Unique:      s.Unique,
		Sparse:      s.Sparse,
		Name:        s.Name,
		ExpireAfter: s.ExpireAfter,
	}
	for _, f := range s.Fields {
		m.Keys = append(m.Keys, store.IndexKey{Field: f.Field, Desc: f.Desc})
	}
	if m.Name == "" {
		var parts []string
		for _, k := range m.Keys {
			if k.Desc {
				parts = append(parts, k.Field+"_-1")
			} else {
				parts = append(parts, k.Field+"_1")
			}
		}
		m.Name = strings.Join(parts, "_")
	}
	return m
}
