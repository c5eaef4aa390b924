//go:build cgo_sqlite

package sqliteexternal

import _ "github.com/mattn/go-sqlite3"

// Name and import path of the registered driver.
const (
	DriverName    = "sqlite3"
	DriverPackage = "github.com/mattn/go-sqlite3"
)
