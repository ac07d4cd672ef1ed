// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package mysql provides the MySQL dialect. MySQL has no schema concept
// distinct from the database, so the journal and all objects live in the
// connected database and qualified names carry no schema part.
package mysql

import (
	"embed"
	"fmt"
	"strings"
	"time"

	"dbex.io/dbex/internal/sqlx"
	"dbex.io/dbex/sql/dialect"
	"dbex.io/dbex/sql/schema"
	"dbex.io/dbex/sql/sqlparse"

	driver "github.com/go-sql-driver/mysql"
)

//go:embed sql/*.sql
var resources embed.FS

// DriverName holds the name used for registration.
const DriverName = "mysql"

func init() {
	dialect.Register(&mysql{})
}

type mysql struct{}

func (*mysql) Name() string       { return DriverName }
func (*mysql) DriverName() string { return "mysql" }

func (*mysql) DefaultSchema() (string, bool) { return "", false }

func (*mysql) Quoting() sqlparse.Quoting {
	return sqlparse.Quoting{Pairs: [][2]rune{{'`', '`'}}}
}

func (*mysql) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (*mysql) Delimiter() sqlparse.Delimiter { return sqlparse.DelimiterSemicolon }

func (*mysql) CreateObjectTypes() []string {
	return []string{"FUNCTION", "VIEW", "PROCEDURE"}
}

func (*mysql) SupportsCreateOrAlter() bool { return true } // CREATE OR REPLACE (views)

func (*mysql) JournalIdent() dialect.Ident {
	return dialect.Ident{Name: "schemaversions"}
}

func (m *mysql) JournalCreateSQL(j dialect.Ident) string {
	return journalResource("sql/journal_create.sql", j)
}

func (m *mysql) JournalSelectSQL(j dialect.Ident) string {
	return fmt.Sprintf("SELECT `scriptname` FROM %s ORDER BY `scriptname`", m.QuoteIdent(j.Name))
}

func (m *mysql) JournalInsertSQL(j dialect.Ident) string {
	return fmt.Sprintf("INSERT INTO %s (`scriptname`, `applied`) VALUES (?, ?)", m.QuoteIdent(j.Name))
}

// AdminDatabase is empty: administrative statements run on a connection
// without a default database selected.
func (*mysql) AdminDatabase() string { return "" }

func (*mysql) DatabaseCreateSQL(name string) string {
	return databaseResource("sql/database_create.sql", name)
}

func (*mysql) DatabaseDropSQL(name string) string {
	return databaseResource("sql/database_drop.sql", name)
}

func (*mysql) DatabaseExistsSQL(name string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = '%s'",
		strings.ReplaceAll(name, "'", "''"))
}

// WithDatabase rewrites the DSN through the driver's config API.
func (*mysql) WithDatabase(dsn, database string) (string, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql: parse connection string: %w", err)
	}
	cfg.DBName = database
	return cfg.FormatDSN(), nil
}

func (*mysql) DatabaseName(dsn string) (string, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql: parse connection string: %w", err)
	}
	return cfg.DBName, nil
}

func (*mysql) DataType(typeName string) dialect.DataTypeInfo {
	switch t := strings.ToLower(typeName); t {
	case "tinyint", "smallint", "mediumint", "int", "integer", "year":
		return dialect.DataTypeInfo{Kind: schema.TypeInt, IsInteger: true}
	case "bigint":
		return dialect.DataTypeInfo{Kind: schema.TypeLong, IsInteger: true}
	case "decimal", "numeric", "float", "double":
		return dialect.DataTypeInfo{Kind: schema.TypeDecimal, IsDecimal: true}
	case "bit", "bool", "boolean":
		return dialect.DataTypeInfo{Kind: schema.TypeBool}
	case "date":
		return dialect.DataTypeInfo{Kind: schema.TypeDateOnly}
	case "time":
		return dialect.DataTypeInfo{Kind: schema.TypeTimeOnly}
	case "datetime", "timestamp":
		return dialect.DataTypeInfo{Kind: schema.TypeDateTime}
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob":
		return dialect.DataTypeInfo{Kind: schema.TypeBinary}
	default:
		return dialect.DataTypeInfo{Kind: schema.TypeString, IsString: true}
	}
}

func (*mysql) FormatValue(v dialect.Value) string {
	switch v.Kind {
	case dialect.KindNull:
		return "NULL"
	case dialect.KindBool:
		if v.Bool {
			return "1"
		}
		return "0"
	case dialect.KindInt:
		return fmt.Sprintf("%d", v.Int)
	case dialect.KindFloat:
		return formatFloat(v.Float)
	case dialect.KindString:
		return "'" + escapeString(v.String) + "'"
	case dialect.KindBytes:
		return fmt.Sprintf("0x%x", v.Bytes)
	case dialect.KindDateTime:
		return "'" + v.Time.Format("2006-01-02 15:04:05.999999") + "'"
	case dialect.KindDateOnly:
		return "'" + v.Time.Format(time.DateOnly) + "'"
	case dialect.KindTimeOnly:
		return "'" + v.Time.Format("15:04:05.999999") + "'"
	case dialect.KindRaw:
		return v.Raw
	}
	return "NULL"
}

// MergeSQL renders INSERT .. ON DUPLICATE KEY UPDATE. MySQL matches on the
// table's unique keys rather than an explicit column list; reference-data
// tables carry a unique code column, so the semantics coincide for the
// supported data shapes.
func (*mysql) MergeSQL(m *dialect.Merge) string {
	b := sqlx.NewBuilder('`', '`')
	b.P("INSERT INTO", m.Table).Wrap(func(b *sqlx.Builder) {
		b.WriteString(strings.Join(m.Columns, ", "))
	})
	b.P("VALUES").MapComma(len(m.Rows), func(i int, b *sqlx.Builder) {
		b.Wrap(func(b *sqlx.Builder) {
			b.WriteString(strings.Join(m.Rows[i], ", "))
		})
	})
	b.P("AS", "`new`", "ON DUPLICATE KEY UPDATE")
	update := m.Update
	if len(update) == 0 {
		// No updatable columns; re-assigning the first column keeps the
		// statement valid and the row untouched.
		update = m.Columns[:1]
	}
	b.MapComma(len(update), func(i int, b *sqlx.Builder) {
		b.P(update[i], "=", "`new`."+update[i])
	})
	b.WriteString(";")
	return b.String()
}

// ResetFilter excludes the system databases from the Reset phase.
func (*mysql) ResetFilter(schemaName, _ string) bool {
	switch schemaName {
	case "mysql", "sys", "information_schema", "performance_schema":
		return false
	}
	return true
}

// escapeString escapes a string literal for MySQL, which treats backslash
// as an escape character in addition to doubled quotes.
func escapeString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "'", "''")
	return r.Replace(s)
}

func formatFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", f), "0"), ".")
}

func databaseResource(name, database string) string {
	b, err := resources.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("mysql: missing embedded resource %q", name))
	}
	return strings.ReplaceAll(string(b), "@DatabaseName", database)
}

func journalResource(name string, j dialect.Ident) string {
	b, err := resources.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("mysql: missing embedded resource %q", name))
	}
	r := strings.NewReplacer("{{JournalSchema}}", j.Schema, "{{JournalTable}}", j.Name)
	return r.Replace(string(b))
}
