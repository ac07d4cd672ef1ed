// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package data loads declarative YAML/JSON data files against an
// introspected database model and renders them as engine-specific
// INSERT and upsert statements.
//
// A data file is a mapping of schema name to a sequence of tables, each
// a single-pair mapping of (optionally prefixed) table name to rows:
//
//	Ref:
//	  - $Gender:
//	      - M: Male
//	      - F: Female
//	Demo:
//	  - Person:
//	      - FirstName: Wendy
//	        Gender: F
//
// The "$" prefix selects merge (upsert) semantics and "^" requests a
// generated identifier for rows lacking a primary-key value. The "*"
// schema carries table-agnostic configuration (preConditionSql, preSql,
// postSql). Reference-data tables accept the shorthand scalar-pair row
// form, where the key is the code and the value the text.
package data

import (
	"fmt"
	"time"

	"dbex.io/dbex/sql/dialect"
	"dbex.io/dbex/sql/inspect"
	"dbex.io/dbex/sql/schema"
)

// A DuplicateColumnError reports a column appearing twice in one row.
type DuplicateColumnError struct {
	Table  string
	Column string
}

func (e *DuplicateColumnError) Error() string {
	return fmt.Sprintf("data: table %s: duplicate column %q in row", e.Table, e.Column)
}

// An InvalidStructureError reports a data file deviating from the
// schema/table/rows shape.
type InvalidStructureError struct {
	Context string
	Reason  string
}

func (e *InvalidStructureError) Error() string {
	return fmt.Sprintf("data: %s: %s", e.Context, e.Reason)
}

// A TableNotFoundError reports a table absent from the database model.
type TableNotFoundError struct {
	Schema string
	Table  string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("data: table %s.%s not found in database", e.Schema, e.Table)
}

// A ParameterUnresolvedError reports a ^(name) reference with no
// matching runtime parameter or registered function.
type ParameterUnresolvedError struct {
	Expr string
}

func (e *ParameterUnresolvedError) Error() string {
	return fmt.Sprintf("data: runtime parameter %q cannot be resolved", e.Expr)
}

// A CoercionError reports a scalar that cannot be converted to its
// column's type.
type CoercionError struct {
	Table  string
	Column string
	Value  string
	Err    error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("data: table %s: column %q: cannot coerce %q: %v", e.Table, e.Column, e.Value, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// A RuntimeFunc resolves a ^(name) reference to a value at load time.
type RuntimeFunc func() (any, error)

// A ColumnDefault supplies a value for unset columns. Schema and Table
// accept "*" as a wildcard; resolution prefers the most specific match
// (exact, then any-table, then any-schema).
type ColumnDefault struct {
	Schema string
	Table  string
	Column string
	Value  any
}

// A TableMapping redirects a parsed (schema, table) pair to a physical
// one, optionally renaming columns.
type TableMapping struct {
	Schema   string
	Table    string
	ToSchema string
	ToTable  string
	Columns  map[string]string
}

// Config carries the session arguments for a load.
type Config struct {
	// UserName and Now seed the audit-column defaults and the built-in
	// UserName/DateTimeNow runtime parameters.
	UserName string
	Now      time.Time

	// ReplaceShorthandGuids expands "^N" string scalars on Guid columns
	// into the integer-seeded Guid form.
	ReplaceShorthandGuids bool

	// Ref-data default column names; empty disables the default.
	IsActiveColumn  string
	SortOrderColumn string

	// IDSuffix is the convention suffix resolving "<X>" row keys to a
	// foreign-ref-data column "<X><IDSuffix>".
	IDSuffix string

	// RuntimeParams and RuntimeFuncs resolve ^(name) references beyond
	// the built-in UserName and DateTimeNow. Free-form reflective paths
	// are intentionally not supported; embedders register functions.
	RuntimeParams map[string]string
	RuntimeFuncs  map[string]RuntimeFunc

	Defaults []ColumnDefault
	Mappings []TableMapping

	// Identifier generation for "^"-prefixed tables; zero values select
	// the defaults (Guid v4, monotonic integers).
	Generators Generators
}

// DefaultConfig returns a Config with the conventional ref-data default
// columns enabled.
func DefaultConfig() Config {
	return Config{
		Now:             time.Now(),
		IsActiveColumn:  "IsActive",
		SortOrderColumn: "SortOrder",
		IDSuffix:        "Id",
	}
}

// A Table is one parsed table occurrence with its prepared rows.
type Table struct {
	Table      *schema.Table
	IsMerge    bool
	GenerateID bool
	Rows       []*Row

	config *fileConfig
}

// A Row is an ordered list of resolved cells.
type Row struct {
	Cells []*Cell
}

// Cell returns the row's cell for the named column, if set.
func (r *Row) Cell(column string) (*Cell, bool) {
	for _, c := range r.Cells {
		if c.Column.Name == column {
			return c, true
		}
	}
	return nil, false
}

// A Cell binds a column to its coerced value. When UseFKQuery is set the
// value is a reference-data code rendered as a scalar subquery against
// the foreign table.
type Cell struct {
	Column     *schema.Column
	Value      dialect.Value
	UseFKQuery bool
	FKCode     string
	Generated  bool
}

// fileConfig is the "*" schema configuration, applied to every table
// parsed from the same file.
type fileConfig struct {
	preConditionSQL string
	preSQL          string
	postSQL         string
}

// A Loader accumulates parsed data files and renders them to SQL.
type Loader struct {
	d     dialect.Dialect
	model *inspect.Model
	cfg   Config

	tables   []*Table
	cascades []cascade
	prepared bool
	gen      generatorState
}

// cascade defers the parent-to-child primary-key propagation until all
// defaults (including generated identifiers) have been applied.
type cascade struct {
	parent    *schema.Table
	parentRow *Row
	child     *Table
	childRow  *Row
}

// NewLoader returns a loader over the introspected model.
func NewLoader(d dialect.Dialect, model *inspect.Model, cfg Config) *Loader {
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}
	return &Loader{d: d, model: model, cfg: cfg}
}

// Tables returns the parsed tables in input order.
func (l *Loader) Tables() []*Table { return l.tables }

func (l *Loader) mapTable(schemaName, tableName string) (string, string, map[string]string) {
	for _, m := range l.cfg.Mappings {
		if m.Schema == schemaName && m.Table == tableName {
			return m.ToSchema, m.ToTable, m.Columns
		}
	}
	return schemaName, tableName, nil
}
