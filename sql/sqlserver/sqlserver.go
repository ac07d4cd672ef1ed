// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package sqlserver provides the SQL Server dialect.
package sqlserver

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

	_ "github.com/microsoft/go-mssqldb"
)

//go:embed sql/*.sql
var resources embed.FS

// DriverName holds the name used for registration.
const DriverName = "sqlserver"

func init() {
	dialect.Register(&sqlserver{})
}

type sqlserver struct{}

func (*sqlserver) Name() string       { return DriverName }
func (*sqlserver) DriverName() string { return "sqlserver" }

func (*sqlserver) DefaultSchema() (string, bool) { return "dbo", true }

func (*sqlserver) Quoting() sqlparse.Quoting {
	return sqlparse.Quoting{Pairs: [][2]rune{{'[', ']'}, {'"', '"'}}}
}

func (*sqlserver) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (*sqlserver) Delimiter() sqlparse.Delimiter { return sqlparse.DelimiterGo }

func (*sqlserver) CreateObjectTypes() []string {
	return []string{"TYPE", "FUNCTION", "VIEW", "PROCEDURE"}
}

func (*sqlserver) SupportsCreateOrAlter() bool { return true }

func (*sqlserver) JournalIdent() dialect.Ident {
	return dialect.Ident{Schema: "dbo", Name: "SchemaVersions"}
}

func (s *sqlserver) JournalCreateSQL(j dialect.Ident) string {
	return journalResource("sql/journal_create.sql", j)
}

func (s *sqlserver) JournalSelectSQL(j dialect.Ident) string {
	return fmt.Sprintf("SELECT [ScriptName] FROM %s.%s ORDER BY [ScriptName]",
		s.QuoteIdent(j.Schema), s.QuoteIdent(j.Name))
}

func (s *sqlserver) JournalInsertSQL(j dialect.Ident) string {
	return fmt.Sprintf("INSERT INTO %s.%s ([ScriptName], [Applied]) VALUES (@p1, @p2)",
		s.QuoteIdent(j.Schema), s.QuoteIdent(j.Name))
}

func (*sqlserver) AdminDatabase() string { return "master" }

func (*sqlserver) DatabaseCreateSQL(name string) string {
	return databaseResource("sql/database_create.sql", name)
}

func (*sqlserver) DatabaseDropSQL(name string) string {
	return databaseResource("sql/database_drop.sql", name)
}

func (*sqlserver) DatabaseExistsSQL(name string) string {
	return "SELECT COUNT(*) FROM sys.databases WHERE [name] = N" + sqlx.SingleQuote(name)
}

// WithDatabase rewrites the sqlserver:// URL to connect to the given
// database. An empty database connects without a default catalog.
func (*sqlserver) WithDatabase(dsn, database string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("sqlserver: parse connection string: %w", err)
	}
	q := u.Query()
	if database == "" {
		q.Del("database")
	} else {
		q.Set("database", database)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (*sqlserver) DatabaseName(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("sqlserver: parse connection string: %w", err)
	}
	return u.Query().Get("database"), nil
}

func (*sqlserver) DataType(typeName string) dialect.DataTypeInfo {
	switch t := strings.ToLower(typeName); t {
	case "tinyint", "smallint", "int":
		return dialect.DataTypeInfo{Kind: schema.TypeInt, IsInteger: true}
	case "bigint":
		return dialect.DataTypeInfo{Kind: schema.TypeLong, IsInteger: true}
	case "decimal", "numeric", "money", "smallmoney", "float", "real":
		return dialect.DataTypeInfo{Kind: schema.TypeDecimal, IsDecimal: true}
	case "bit":
		return dialect.DataTypeInfo{Kind: schema.TypeBool}
	case "date":
		return dialect.DataTypeInfo{Kind: schema.TypeDateOnly}
	case "time":
		return dialect.DataTypeInfo{Kind: schema.TypeTimeOnly}
	case "datetime", "datetime2", "smalldatetime", "datetimeoffset":
		return dialect.DataTypeInfo{Kind: schema.TypeDateTime}
	case "uniqueidentifier":
		return dialect.DataTypeInfo{Kind: schema.TypeGUID}
	case "binary", "varbinary", "image", "rowversion", "timestamp":
		return dialect.DataTypeInfo{Kind: schema.TypeBinary}
	case "nchar", "nvarchar", "ntext":
		return dialect.DataTypeInfo{Kind: schema.TypeString, IsString: true, IsUnicodeText: true}
	default:
		return dialect.DataTypeInfo{Kind: schema.TypeString, IsString: true}
	}
}

func (*sqlserver) FormatValue(v dialect.Value) string {
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
		s := sqlx.SingleQuote(v.String)
		if v.Unicode {
			return "N" + s
		}
		return s
	case dialect.KindBytes:
		return fmt.Sprintf("0x%x", v.Bytes)
	case dialect.KindDateTime:
		return "'" + v.Time.Format("2006-01-02T15:04:05.9999999") + "'"
	case dialect.KindDateOnly:
		return "'" + v.Time.Format(time.DateOnly) + "'"
	case dialect.KindTimeOnly:
		return "'" + v.Time.Format("15:04:05.9999999") + "'"
	case dialect.KindRaw:
		return v.Raw
	}
	return "NULL"
}

// MergeSQL renders a T-SQL MERGE keyed on the match columns.
func (*sqlserver) MergeSQL(m *dialect.Merge) string {
	b := sqlx.NewBuilder('[', ']')
	b.P("MERGE INTO", m.Table, "AS", "[t]", "USING").Wrap(func(b *sqlx.Builder) {
		b.P("VALUES").MapComma(len(m.Rows), func(i int, b *sqlx.Builder) {
			b.Wrap(func(b *sqlx.Builder) {
				b.WriteString(strings.Join(m.Rows[i], ", "))
			})
		})
	})
	b.P("AS", "[s]").Wrap(func(b *sqlx.Builder) {
		b.WriteString(strings.Join(m.Columns, ", "))
	})
	b.P("ON")
	for i, c := range m.On {
		if i > 0 {
			b.P("AND")
		}
		b.P("[t]."+c, "=", "[s]."+c)
	}
	if len(m.Update) > 0 {
		b.P("WHEN MATCHED THEN UPDATE SET").MapComma(len(m.Update), func(i int, b *sqlx.Builder) {
			b.P("[t]."+m.Update[i], "=", "[s]."+m.Update[i])
		})
	}
	b.P("WHEN NOT MATCHED THEN INSERT").Wrap(func(b *sqlx.Builder) {
		b.WriteString(strings.Join(m.Insert, ", "))
	}).P("VALUES").Wrap(func(b *sqlx.Builder) {
		b.MapComma(len(m.Insert), func(i int, b *sqlx.Builder) {
			b.WriteString("[s]." + m.Insert[i])
		})
	})
	b.WriteString(";")
	return b.String()
}

// ResetFilter excludes the dbo and cdc schemas from the Reset phase.
func (*sqlserver) ResetFilter(schemaName, _ string) bool {
	return schemaName != "dbo" && schemaName != "cdc"
}

func formatFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", f), "0"), ".")
}

func databaseResource(name, database string) string {
	b, err := resources.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("sqlserver: missing embedded resource %q", name))
	}
	return strings.ReplaceAll(string(b), "@DatabaseName", database)
}

func journalResource(name string, j dialect.Ident) string {
	b, err := resources.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("sqlserver: missing embedded resource %q", name))
	}
	r := strings.NewReplacer("{{JournalSchema}}", j.Schema, "{{JournalTable}}", j.Name)
	return r.Replace(string(b))
}
