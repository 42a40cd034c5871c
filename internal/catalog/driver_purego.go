//go:build !sqlite_cgo

package catalog

import (
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// driverName selects the pure Go driver. This is the default build so
// the binary cross-compiles without a C toolchain.
const driverName = "sqlite"
