// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package schema defines the normalized table/column model produced by
// database introspection and consumed by the data loader and the Reset phase.
package schema

import (
	"context"
	"database/sql"
	"strings"
)

// ExecQuerier is the capability required from a database connection:
// executing statements and running queries. *sql.DB and *sql.Tx, as well as
// mocks, satisfy it.
type ExecQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type (
	// A Table describes a single table (or view) discovered by introspection.
	Table struct {
		Schema  string
		Name    string
		IsView  bool
		Columns []*Column

		// IsRefData reports whether the table matches the reference-data
		// shape: a lookup table keyed by a unique string code.
		IsRefData bool
		// RefDataCodeColumn is the code column of a reference-data table.
		RefDataCodeColumn *Column
	}

	// A Column describes a single column of a Table.
	Column struct {
		Name         string
		Type         string // engine type name, lower case
		DataType     DataType
		Length       int64
		Precision    int64
		Scale        int64
		IsNullable   bool
		IsPrimaryKey bool
		IsIdentity   bool
		IsUnique     bool
		IsComputed   bool
		DefaultValue sql.NullString

		// Single-column foreign key target, if any.
		ForeignSchema string
		ForeignTable  string
		ForeignColumn string

		// Reference-data link. Set either from a physical foreign key or
		// inferred from the <X>Id naming convention.
		IsForeignRefData         bool
		ForeignRefDataCodeColumn string

		// Semantic flags assigned by configured column names.
		IsCreatedAudit bool
		IsUpdatedAudit bool
		IsTenantID     bool
		IsRowVersion   bool
		IsIsDeleted    bool
		IsRefDataCode  bool
		IsRefDataText  bool
		IsJSONContent  bool
	}
)

// DataType is the semantic type a column value is coerced into by the
// data loader, independent of the engine's type name.
type DataType int

// Semantic column types.
const (
	TypeString DataType = iota
	TypeInt
	TypeLong
	TypeDecimal
	TypeBool
	TypeDateTime
	TypeDateOnly
	TypeTimeOnly
	TypeGUID
	TypeBinary
)

// Column returns the column with the given name (case-insensitive),
// mirroring the loose matching used by declarative data files.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return nil, false
}

// PrimaryKey returns the primary-key columns in declaration order.
func (t *Table) PrimaryKey() []*Column {
	var pk []*Column
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			pk = append(pk, c)
		}
	}
	return pk
}

// QualifiedName returns "schema.name" for diagnostics. Quoting for SQL
// emission is the dialect's concern.
func (t *Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Audit reports whether the column is one of the created/updated audit pair.
func (c *Column) Audit() bool {
	return c.IsCreatedAudit || c.IsUpdatedAudit
}
