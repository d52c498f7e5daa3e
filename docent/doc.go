// Package docent is a document-object mapper. Entities are plain
// structs embedding Document, with struct tags declaring wire keys,
// indexes, encrypted fields and typed references:
//
//	type Post struct {
//		docent.Document
//		docent.Timestamps
//		Title  string             `docent:"title" index:"1"`
//		Body   string             `docent:"body"`
//		Author docent.Ref[Author] `docent:"author" ref:"Author"`
//	}
//
// A Collection[T] is the typed gateway to one entity's documents. Saves
// are partial: loaded entities write only the fields that changed since
// hydration, and saving a clean entity performs no store operation.
// Queries are built lazily on immutable QuerySet values and executed by
// their terminal methods. Reference fields resolve in batches through a
// PopulateEngine, which caches per engine so cycles terminate.
//
// Storage is pluggable behind the store interfaces; drivers register by
// URI scheme. The memstore package provides the bundled in-memory and
// file-backed driver.
package docent
