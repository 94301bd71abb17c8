package database

import (
	"strings"
)

// Dialect names a SQL flavour. The value doubles as the database/sql driver name.
type Dialect string

// Supported dialects.
const (
	DialectSQLite Dialect = "sqlite3"
	DialectMySQL  Dialect = "mysql"
)

// Quote quotes an identifier with backticks. Both SQLite and MySQL accept
// backtick quoting, which matters for columns such as `date` and `do`.
func (d Dialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// QuoteList quotes each identifier and joins them with ", ".
func (d Dialect) QuoteList(idents []string) string {
	quoted := make([]string, len(idents))
	for i, id := range idents {
		quoted[i] = d.Quote(id)
	}
	return strings.Join(quoted, ", ")
}

// InsertIgnore returns the statement prefix that inserts rows while skipping
// any that violate a unique constraint.
func (d Dialect) InsertIgnore() string {
	if d == DialectMySQL {
		return "INSERT IGNORE INTO"
	}
	return "INSERT OR IGNORE INTO"
}
