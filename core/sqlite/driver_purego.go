//go:build !cgo_sqlite

package sqlite

import _ "modernc.org/sqlite"

var current = Driver{Name: "sqlite", Package: "modernc.org/sqlite"}
