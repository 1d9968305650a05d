// Package catalog persists transcript segments in SQLite and serves
// full-text search over them.
//
// The index step writes segments through UpsertSegments; the search CLI
// reads them back through Search. Everything in the catalog is derived
// from transcript files on disk, so on schema mismatch the file is simply
// deleted and rebuilt rather than migrated.
package catalog
