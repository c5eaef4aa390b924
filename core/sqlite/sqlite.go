// Package sqlite opens the witness catalog database. Builds use
// modernc.org/sqlite unless the cgo_sqlite tag selects mattn/go-sqlite3
// through contrib/sqlite-external.
package sqlite

import (
	"database/sql"
	"fmt"
)

// Driver describes the database/sql driver compiled in.
type Driver struct {
	Name    string // registered database/sql name
	CGO     bool
	Package string
}

func (d Driver) String() string {
	kind := "pure Go"
	if d.CGO {
		kind = "cgo"
	}
	return fmt.Sprintf("%s (%s, %s)", d.Name, kind, d.Package)
}

// Current returns the compiled-in driver.
func Current() Driver {
	return current
}

// Option adjusts how a database is opened.
type Option func(*options)

type options struct {
	readOnly bool
}

// ReadOnly opens an existing database without write access.
func ReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

// Open opens the database at path and checks that it answers.
func Open(path string, opts ...Option) (*sql.DB, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	dsn := path
	if o.readOnly {
		dsn = "file:" + path + "?mode=ro"
	}
	db, err := sql.Open(current.Name, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", path, err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", path, err)
		}
	}
	return db, nil
}
