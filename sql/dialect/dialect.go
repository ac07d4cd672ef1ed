// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package dialect defines the per-engine capability bundle consumed by the
// migrator, the inspector, the reconciler and the data loader. Engines
// register themselves by name; the migrator looks them up at session start.
package dialect

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"dbex.io/dbex/sql/schema"
	"dbex.io/dbex/sql/sqlparse"
)

// Ident is a qualified database object identifier.
type Ident struct {
	Schema string
	Name   string
}

// A Dialect bundles every engine-specific capability used by the core.
// One implementation exists per supported engine (SQL Server, MySQL,
// PostgreSQL), registered under its engine name.
type Dialect interface {
	// Name is the engine name used for registration (e.g. "sqlserver").
	Name() string
	// DriverName is the database/sql driver name to open connections with.
	DriverName() string

	// DefaultSchema returns the engine's default schema name and whether
	// the engine has a schema concept distinct from the database.
	DefaultSchema() (string, bool)

	// Quoting returns the identifier-quoting configuration for the scanner.
	Quoting() sqlparse.Quoting
	// QuoteIdent quotes a single identifier for SQL emission.
	QuoteIdent(name string) string
	// Delimiter returns the batch-splitting mode for scripts.
	Delimiter() sqlparse.Delimiter

	// CreateObjectTypes returns the idempotent CREATE object types the
	// engine supports, in create-precedence order.
	CreateObjectTypes() []string
	// SupportsCreateOrAlter reports whether `CREATE OR ALTER` (SQL Server)
	// or `CREATE OR REPLACE` (MySQL, PostgreSQL) heads are accepted.
	SupportsCreateOrAlter() bool

	// Journal identifiers and SQL. The schema/table may be overridden by
	// the session parameters before use.
	JournalIdent() Ident
	JournalCreateSQL(j Ident) string
	JournalSelectSQL(j Ident) string
	JournalInsertSQL(j Ident) string

	// Administrative database operations.
	AdminDatabase() string
	DatabaseCreateSQL(name string) string
	DatabaseDropSQL(name string) string
	DatabaseExistsSQL(name string) string

	// DSN manipulation. WithDatabase rewrites the connection string to
	// connect to the named database; DatabaseName extracts the database
	// name from a connection string.
	WithDatabase(dsn, database string) (string, error)
	DatabaseName(dsn string) (string, error)

	// Introspection queries. Each returns a parameterless statement
	// producing the fixed projection documented in sql/inspect.
	ColumnsQuery() string
	KeysQuery() string
	ForeignKeysQuery() string

	// Type classification for the data loader.
	DataType(typeName string) (t DataTypeInfo)

	// Value formatting for SQL emission.
	FormatValue(v Value) string

	// MergeSQL renders an engine-specific upsert for the given statement.
	MergeSQL(m *Merge) string

	// ResetFilter reports whether a table participates in the Reset phase.
	// The journal table is excluded by the caller.
	ResetFilter(schema, table string) bool
}

// DataTypeInfo classifies an engine type name for value coercion.
type DataTypeInfo struct {
	Kind          schema.DataType
	IsInteger     bool
	IsDecimal     bool
	IsString      bool
	IsUnicodeText bool // N'' prefix applies (SQL Server)
}

// A Value is a typed scalar handed to FormatValue. Exactly one field is
// meaningful according to Kind.
type Value struct {
	Null    bool
	Bool    bool
	Int     int64
	Float   float64
	String  string
	Bytes   []byte
	Time    time.Time
	Raw     string // pre-rendered SQL expression, emitted verbatim
	Kind    ValueKind
	Unicode bool // multibyte string prefix where applicable
}

// ValueKind discriminates Value.
type ValueKind int

// Value kinds.
const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindDateTime
	KindDateOnly
	KindTimeOnly
	KindRaw
)

// Merge describes an upsert statement with pre-rendered identifiers and
// value expressions. The dialect decides the concrete syntax (MERGE for
// SQL Server and PostgreSQL, INSERT .. ON DUPLICATE KEY UPDATE for MySQL).
type Merge struct {
	Table   string     // quoted qualified table name
	Columns []string   // quoted source column names
	Rows    [][]string // rendered value expressions, one slice per row
	On      []string   // quoted match column names
	Insert  []string   // quoted columns written on insert
	Update  []string   // quoted columns written on update
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Dialect)
)

// Register registers a dialect under its name. It panics when called twice
// for the same name, mirroring database/sql.Register.
func Register(d Dialect) {
	driversMu.Lock()
	defer driversMu.Unlock()
	name := d.Name()
	if _, ok := drivers[name]; ok {
		panic("dialect: Register called twice for " + name)
	}
	drivers[name] = d
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("dialect: unknown engine %q (forgotten import?)", name)
	}
	return d, nil
}

// Names returns the registered dialect names, for CLI help output.
func Names() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
