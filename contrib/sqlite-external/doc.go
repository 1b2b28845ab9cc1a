// Package sqliteexternal provides optional external SQLite drivers.
//
// # CGO SQLite Driver
//
// To use the CGO driver (github.com/mattn/go-sqlite3) build with:
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./cmd/studybible
//
// core/sqlite then opens every database through "sqlite3" instead of the
// default pure Go "sqlite" driver. Both store the same schema; the CGO
// driver is faster on large imports, the pure Go driver cross-compiles.
package sqliteexternal
