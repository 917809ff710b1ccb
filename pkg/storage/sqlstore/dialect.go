// Package sqlstore runs relation plans on a SQL warehouse. Plans compile to
// parameterised SELECT statements: identifiers come from the source schema,
// values are always bind arguments.
package sqlstore

import (
	"fmt"
	"regexp"
	"strings"

	// Drivers for the supported dialects.
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/nicktill/carbondash/pkg/relation"
)

// Dialect captures the bits of SQL that differ between engines.
type Dialect struct {
	Name   string
	Driver string

	quote       string
	intType     string
	stringType  string
	decimalType string
}

var (
	MySQL = Dialect{
		Name:        "mysql",
		Driver:      "mysql",
		quote:       "`",
		intType:     "BIGINT",
		stringType:  "VARCHAR(191)",
		decimalType: "DECIMAL(20,6)",
	}

	// SQLite stores decimals as REAL; sums drift from exact decimal
	// arithmetic once values stop being binary fractions.
	SQLite = Dialect{
		Name:        "sqlite",
		Driver:      "sqlite",
		quote:       `"`,
		intType:     "INTEGER",
		stringType:  "TEXT",
		decimalType: "REAL",
	}
)

// DialectByName returns the dialect called name ("mysql" or "sqlite").
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case MySQL.Name:
		return MySQL, nil
	case SQLite.Name, "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unknown sql dialect %q", name)
}

var relationName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// QuoteIdent quotes one identifier.
func (d Dialect) QuoteIdent(name string) string {
	return d.quote + strings.ReplaceAll(name, d.quote, d.quote+d.quote) + d.quote
}

// QuoteRelation quotes a possibly schema-qualified relation name.
func (d Dialect) QuoteRelation(name string) (string, error) {
	if !relationName.MatchString(name) {
		return "", fmt.Errorf("invalid relation name %q", name)
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.QuoteIdent(p)
	}
	return strings.Join(parts, "."), nil
}

func (d Dialect) columnType(k relation.Kind) string {
	switch k {
	case relation.KindInt:
		return d.intType
	case relation.KindDecimal:
		return d.decimalType
	}
	return d.stringType
}

// CreateTable returns the DDL for a table holding schema.
func (d Dialect) CreateTable(name string, schema relation.Schema) (string, error) {
	table, err := d.QuoteRelation(name)
	if err != nil {
		return "", err
	}
	cols := make([]string, len(schema))
	for i, f := range schema {
		cols[i] = d.QuoteIdent(string(f.Name)) + " " + d.columnType(f.Kind) + " NULL"
	}
	return "CREATE TABLE IF NOT EXISTS " + table + " (" + strings.Join(cols, ", ") + ")", nil
}
