package storage

import (
	"strconv"
	"strings"
)

// Driver names a supported database
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// dialect covers the few places SQLite and PostgreSQL disagree
type dialect interface {
	rebind(query string) string
	autoID() string
	float() string
	blob() string
	// greatest is the two-argument scalar maximum
	greatest(a, b string) string
}

type sqliteDialect struct{}

func (sqliteDialect) rebind(query string) string { return query }
func (sqliteDialect) autoID() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (sqliteDialect) float() string { return "REAL" }
func (sqliteDialect) blob() string { return "BLOB" }
func (sqliteDialect) greatest(a, b string) string { return "MAX(" + a + ", " + b + ")" }

type postgresDialect struct{}

func (postgresDialect) autoID() string { return "BIGSERIAL PRIMARY KEY" }
func (postgresDialect) float() string { return "DOUBLE PRECISION" }
func (postgresDialect) blob() string { return "BYTEA" }
func (postgresDialect) greatest(a, b string) string { return "GREATEST(" + a + ", " + b + ")" }

// rebind turns ? placeholders into $1, $2, ... Queries here never contain a
// literal question mark.
func (postgresDialect) rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
