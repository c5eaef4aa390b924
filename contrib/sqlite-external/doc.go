// Package sqliteexternal registers the CGO SQLite driver
// (github.com/mattn/go-sqlite3) for builds that opt into it.
//
// To use the CGO driver:
//
//	import _ "github.com/FocuswithJustin/vmr2tei/contrib/sqlite-external"
//
// Build with:
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite
//
// Without the tag vmr2tei opens witness catalogs with modernc.org/sqlite,
// which needs no C toolchain. See core/sqlite.
package sqliteexternal
