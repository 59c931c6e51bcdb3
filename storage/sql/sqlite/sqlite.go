// Package sqlite wires the SQLite driver and dialect into the generic SQL
// store. Suited to single-node deployments and tests; the optimistic
// protocol still holds across processes sharing the database file.
package sqlite

import (
	dbsql "database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	sqlite3 "github.com/mattn/go-sqlite3"

	hoistsql "github.com/hoistq/hoist/storage/sql"
)

// Dialect returns the SQLite dialect descriptor.
func Dialect() hoistsql.Dialect {
	return hoistsql.Dialect{
		Name:        "sqlite",
		Placeholder: sq.Question,
		Migrations: hoistsql.BaseMigrations(hoistsql.TypeSet{
			Blob:  "BLOB",
			Float: "REAL",
			Bool:  "INTEGER",
		}),
		IsDuplicateKey: isDuplicateKey,
	}
}

// Open opens (or creates) the SQLite database at path and returns a store
// over it. Use ":memory:" for an ephemeral database. busy_timeout keeps
// concurrent writers queueing instead of failing immediately.
func Open(path string, opts ...hoistsql.Option) (*hoistsql.Store, error) {
	db, err := dbsql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer at a time; a larger pool just burns busy
	// timeouts.
	db.SetMaxOpenConns(1)
	return hoistsql.New(db, Dialect(), opts...), nil
}

// isDuplicateKey checks for constraint violations on primary or unique keys.
func isDuplicateKey(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
