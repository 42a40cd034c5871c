//go:build sqlite_cgo

package catalog

import (
	_ "github.com/mattn/go-sqlite3" // CGO SQLite driver
)

// driverName selects the CGO driver when built with -tags sqlite_cgo.
// Faster on large catalogs, requires a C toolchain.
const driverName = "sqlite3"
