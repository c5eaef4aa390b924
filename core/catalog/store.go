package catalog

import (
	"context"
	"database/sql"
	"fmt"

	cerrors "github.com/FocuswithJustin/vmr2tei/core/errors"
	"github.com/FocuswithJustin/vmr2tei/core/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS witness_group (
		name TEXT NOT NULL,
		position INTEGER NOT NULL,
		siglum TEXT NOT NULL,
		PRIMARY KEY (name, siglum)
	)`,
	`CREATE TABLE IF NOT EXISTS byzantine (
		book TEXT NOT NULL,
		position INTEGER NOT NULL,
		siglum TEXT NOT NULL,
		PRIMARY KEY (book, position)
	)`,
	`CREATE TABLE IF NOT EXISTS defect (
		siglum TEXT NOT NULL,
		book TEXT NOT NULL,
		from_chapter INTEGER NOT NULL,
		from_verse INTEGER NOT NULL,
		to_chapter INTEGER NOT NULL,
		to_verse INTEGER NOT NULL,
		PRIMARY KEY (siglum, book, from_chapter, from_verse, to_chapter, to_verse)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_defect_siglum ON defect(siglum, book)`,
}

// Store is a catalog database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the catalog database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, cerrors.NewIO("open catalog", path, err)
	}
	s := &Store{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenReadOnly opens an existing catalog without write access.
func OpenReadOnly(path string) (*Store, error) {
	db, err := sqlite.Open(path, sqlite.ReadOnly())
	if err != nil {
		return nil, cerrors.NewIO("open catalog", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return cerrors.NewIO("migrate catalog", s.path, err)
		}
	}
	return nil
}

// ImportStats counts the rows an import wrote.
type ImportStats struct {
	Groups    int
	Byzantine int
	Defects   int
}

// Import validates the data and merges it into the catalog in one
// transaction. A group or Byzantine list named in the data replaces the
// stored one; defect ranges are added.
func (s *Store) Import(ctx context.Context, data *Data) (ImportStats, error) {
	var stats ImportStats
	snap, err := data.Snapshot()
	if err != nil {
		return stats, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, cerrors.NewIO("import catalog", s.path, err)
	}
	defer tx.Rollback()

	for name, members := range snap.Groups {
		if _, err := tx.ExecContext(ctx, `DELETE FROM witness_group WHERE name = ?`, name); err != nil {
			return stats, cerrors.NewIO("import catalog", s.path, err)
		}
		for i, siglum := range members {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO witness_group (name, position, siglum) VALUES (?, ?, ?)`,
				name, i, siglum); err != nil {
				return stats, cerrors.NewIO("import catalog", s.path, err)
			}
		}
		stats.Groups++
	}
	for book, members := range snap.Byzantine {
		if _, err := tx.ExecContext(ctx, `DELETE FROM byzantine WHERE book = ?`, book); err != nil {
			return stats, cerrors.NewIO("import catalog", s.path, err)
		}
		for i, siglum := range members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO byzantine (book, position, siglum) VALUES (?, ?, ?)`,
				book, i, siglum); err != nil {
				return stats, cerrors.NewIO("import catalog", s.path, err)
			}
		}
		stats.Byzantine++
	}
	for _, d := range snap.Defects {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO defect (siglum, book, from_chapter, from_verse, to_chapter, to_verse)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			d.Siglum, d.Book, d.From.Chapter, d.From.Verse, d.To.Chapter, d.To.Verse); err != nil {
			return stats, cerrors.NewIO("import catalog", s.path, err)
		}
		stats.Defects++
	}

	if err := tx.Commit(); err != nil {
		return stats, cerrors.NewIO("import catalog", s.path, err)
	}
	return stats, nil
}

// Load reads the whole catalog.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Groups:    make(map[string][]string),
		Byzantine: make(map[string][]string),
	}

	if err := s.each(ctx, `SELECT name, siglum FROM witness_group ORDER BY name, position`,
		func(rows *sql.Rows) error {
			var name, siglum string
			if err := rows.Scan(&name, &siglum); err != nil {
				return err
			}
			snap.Groups[name] = append(snap.Groups[name], siglum)
			return nil
		}); err != nil {
		return nil, err
	}

	if err := s.each(ctx, `SELECT book, siglum FROM byzantine ORDER BY book, position`,
		func(rows *sql.Rows) error {
			var book, siglum string
			if err := rows.Scan(&book, &siglum); err != nil {
				return err
			}
			snap.Byzantine[book] = append(snap.Byzantine[book], siglum)
			return nil
		}); err != nil {
		return nil, err
	}

	if err := s.each(ctx, `SELECT siglum, book, from_chapter, from_verse, to_chapter, to_verse FROM defect`,
		func(rows *sql.Rows) error {
			var d Defect
			if err := rows.Scan(&d.Siglum, &d.Book, &d.From.Chapter, &d.From.Verse, &d.To.Chapter, &d.To.Verse); err != nil {
				return err
			}
			snap.Defects = append(snap.Defects, d)
			return nil
		}); err != nil {
		return nil, err
	}

	snap.index()
	return snap, nil
}

func (s *Store) each(ctx context.Context, query string, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return cerrors.NewIO("read catalog", s.path, err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return cerrors.NewIO("read catalog", s.path, err)
		}
	}
	if err := rows.Err(); err != nil {
		return cerrors.NewIO("read catalog", s.path, err)
	}
	return nil
}

// String describes the store.
func (s *Store) String() string {
	return fmt.Sprintf("catalog %s (%s)", s.path, sqlite.Current().Name)
}
