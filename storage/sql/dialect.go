package sql

import (
	sq "github.com/Masterminds/squirrel"
)

// Migration is one ordered schema script. Statements may contain the
// "{prefix}" token, replaced with the store's table prefix at run time.
type Migration struct {
	Name       string
	Statements []string
}

// Dialect describes everything database-specific the generic store needs.
// Backends are variants of one capability set; dialects are the secondary
// axis composed into it.
type Dialect struct {
	// Name identifies the dialect in logs and errors.
	Name string

	// Placeholder is the bind-parameter format (? or $1).
	Placeholder sq.PlaceholderFormat

	// Migrations are applied in order by Migrate, each inside its own
	// transaction, tracked in the {prefix}migrations table.
	Migrations []Migration

	// IsDuplicateKey reports whether err is a primary-key or unique
	// violation.
	IsDuplicateKey func(error) bool
}
