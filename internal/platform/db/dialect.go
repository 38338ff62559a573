package db

import (
	"strconv"
	"strings"
)

// Dialect selects the SQL flavour of a connection.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Bind returns the placeholder for the 1-indexed parameter n.
func (d Dialect) Bind(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// List returns count comma-separated placeholders starting at parameter first.
func (d Dialect) List(first, count int) string {
	ph := make([]string, count)
	for i := range ph {
		ph[i] = d.Bind(first + i)
	}
	return strings.Join(ph, ", ")
}

func (d Dialect) Valid() bool {
	return d == DialectSQLite || d == DialectPostgres
}
