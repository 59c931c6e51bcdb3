package sql

import (
	dbsql "database/sql"
	"errors"
)

// isNoRows reports whether err means the query matched nothing.
func isNoRows(err error) bool {
	return errors.Is(err, dbsql.ErrNoRows)
}
