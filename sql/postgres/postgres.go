// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package postgres provides the PostgreSQL dialect, backed by the pgx
// driver in database/sql compatibility mode.
package postgres

import (
	"embed"
	"fmt"
	"net/url"
	"strings"
	"time"

	"dbex.io/dbex/internal/sqlx"
	"dbex.io/dbex/sql/dialect"
	"dbex.io/dbex/sql/schema"
	"dbex.io/dbex/sql/sqlparse"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed sql/*.sql
var resources embed.FS

// DriverName holds the name used for registration.
const DriverName = "postgres"

func init() {
	dialect.Register(&postgres{})
}

type postgres struct{}

func (*postgres) Name() string       { return DriverName }
func (*postgres) DriverName() string { return "pgx" }

func (*postgres) DefaultSchema() (string, bool) { return "public", true }

func (*postgres) Quoting() sqlparse.Quoting {
	return sqlparse.Quoting{Pairs: [][2]rune{{'"', '"'}}}
}

func (*postgres) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (*postgres) Delimiter() sqlparse.Delimiter { return sqlparse.DelimiterSemicolon }

func (*postgres) CreateObjectTypes() []string {
	return []string{"TYPE", "FUNCTION", "VIEW", "PROCEDURE"}
}

func (*postgres) SupportsCreateOrAlter() bool { return true } // CREATE OR REPLACE

func (*postgres) JournalIdent() dialect.Ident {
	return dialect.Ident{Schema: "public", Name: "schemaversions"}
}

func (p *postgres) JournalCreateSQL(j dialect.Ident) string {
	return journalResource("sql/journal_create.sql", j)
}

func (p *postgres) JournalSelectSQL(j dialect.Ident) string {
	return fmt.Sprintf(`SELECT "scriptname" FROM %s.%s ORDER BY "scriptname"`,
		p.QuoteIdent(j.Schema), p.QuoteIdent(j.Name))
}

func (p *postgres) JournalInsertSQL(j dialect.Ident) string {
	return fmt.Sprintf(`INSERT INTO %s.%s ("scriptname", "applied") VALUES ($1, $2)`,
		p.QuoteIdent(j.Schema), p.QuoteIdent(j.Name))
}

func (*postgres) AdminDatabase() string { return "postgres" }

func (*postgres) DatabaseCreateSQL(name string) string {
	return databaseResource("sql/database_create.sql", name)
}

func (*postgres) DatabaseDropSQL(name string) string {
	return databaseResource("sql/database_drop.sql", name)
}

func (*postgres) DatabaseExistsSQL(name string) string {
	return "SELECT COUNT(*) FROM pg_database WHERE datname = " + sqlx.SingleQuote(name)
}

// WithDatabase rewrites the postgres:// URL path to the given database.
func (*postgres) WithDatabase(dsn, database string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("postgres: parse connection string: %w", err)
	}
	u.Path = "/" + database
	return u.String(), nil
}

func (*postgres) DatabaseName(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("postgres: parse connection string: %w", err)
	}
	return strings.TrimPrefix(u.Path, "/"), nil
}

func (*postgres) DataType(typeName string) dialect.DataTypeInfo {
	switch t := strings.ToLower(typeName); t {
	case "smallint", "integer", "int", "int2", "int4", "smallserial", "serial":
		return dialect.DataTypeInfo{Kind: schema.TypeInt, IsInteger: true}
	case "bigint", "int8", "bigserial":
		return dialect.DataTypeInfo{Kind: schema.TypeLong, IsInteger: true}
	case "numeric", "decimal", "real", "double precision", "money":
		return dialect.DataTypeInfo{Kind: schema.TypeDecimal, IsDecimal: true}
	case "boolean", "bool":
		return dialect.DataTypeInfo{Kind: schema.TypeBool}
	case "date":
		return dialect.DataTypeInfo{Kind: schema.TypeDateOnly}
	case "time", "time without time zone", "time with time zone":
		return dialect.DataTypeInfo{Kind: schema.TypeTimeOnly}
	case "timestamp", "timestamptz", "timestamp without time zone", "timestamp with time zone":
		return dialect.DataTypeInfo{Kind: schema.TypeDateTime}
	case "uuid":
		return dialect.DataTypeInfo{Kind: schema.TypeGUID}
	case "bytea":
		return dialect.DataTypeInfo{Kind: schema.TypeBinary}
	default:
		return dialect.DataTypeInfo{Kind: schema.TypeString, IsString: true}
	}
}

func (*postgres) FormatValue(v dialect.Value) string {
	switch v.Kind {
	case dialect.KindNull:
		return "NULL"
	case dialect.KindBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	case dialect.KindInt:
		return fmt.Sprintf("%d", v.Int)
	case dialect.KindFloat:
		return formatFloat(v.Float)
	case dialect.KindString:
		return sqlx.SingleQuote(v.String)
	case dialect.KindBytes:
		return fmt.Sprintf(`'\x%x'`, v.Bytes)
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

// MergeSQL renders a PostgreSQL 15+ MERGE keyed on the match columns.
func (*postgres) MergeSQL(m *dialect.Merge) string {
	b := sqlx.NewBuilder('"', '"')
	b.P("MERGE INTO", m.Table, "AS", `"t"`, "USING").Wrap(func(b *sqlx.Builder) {
		b.P("VALUES").MapComma(len(m.Rows), func(i int, b *sqlx.Builder) {
			b.Wrap(func(b *sqlx.Builder) {
				b.WriteString(strings.Join(m.Rows[i], ", "))
			})
		})
	})
	b.P("AS", `"s"`).Wrap(func(b *sqlx.Builder) {
		b.WriteString(strings.Join(m.Columns, ", "))
	})
	b.P("ON")
	for i, c := range m.On {
		if i > 0 {
			b.P("AND")
		}
		b.P(`"t".`+c, "=", `"s".`+c)
	}
	if len(m.Update) > 0 {
		b.P("WHEN MATCHED THEN UPDATE SET").MapComma(len(m.Update), func(i int, b *sqlx.Builder) {
			b.P(m.Update[i], "=", `"s".`+m.Update[i])
		})
	}
	b.P("WHEN NOT MATCHED THEN INSERT").Wrap(func(b *sqlx.Builder) {
		b.WriteString(strings.Join(m.Insert, ", "))
	}).P("VALUES").Wrap(func(b *sqlx.Builder) {
		b.MapComma(len(m.Insert), func(i int, b *sqlx.Builder) {
			b.WriteString(`"s".` + m.Insert[i])
		})
	})
	b.WriteString(";")
	return b.String()
}

// ResetFilter excludes the catalog schemas from the Reset phase.
func (*postgres) ResetFilter(schemaName, _ string) bool {
	return !strings.HasPrefix(schemaName, "pg_") && schemaName != "information_schema"
}

func formatFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", f), "0"), ".")
}

func databaseResource(name, database string) string {
	b, err := resources.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("postgres: missing embedded resource %q", name))
	}
	return strings.ReplaceAll(string(b), "@DatabaseName", database)
}

func journalResource(name string, j dialect.Ident) string {
	b, err := resources.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("postgres: missing embedded resource %q", name))
	}
	r := strings.NewReplacer("{{JournalSchema}}", j.Schema, "{{JournalTable}}", j.Name)
	return r.Replace(string(b))
}
