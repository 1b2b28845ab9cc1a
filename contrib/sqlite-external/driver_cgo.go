//go:build cgo_sqlite

// Registers mattn/go-sqlite3 for core/sqlite when studybible is built with
// -tags cgo_sqlite. See doc.go.

package sqliteexternal

import (
	_ "github.com/mattn/go-sqlite3" // CGO SQLite driver
)

const (
	// DriverName is the name core/sqlite passes to sql.Open.
	DriverName = "sqlite3"

	// DriverType is reported by the version command.
	DriverType = "cgo"

	// DriverPackage is the import path of the underlying driver.
	DriverPackage = "github.com/mattn/go-sqlite3"
)
