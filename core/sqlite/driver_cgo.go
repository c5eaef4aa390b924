//go:build cgo_sqlite

package sqlite

import sqliteexternal "github.com/FocuswithJustin/vmr2tei/contrib/sqlite-external"

var current = Driver{Name: sqliteexternal.DriverName, CGO: true, Package: sqliteexternal.DriverPackage}
