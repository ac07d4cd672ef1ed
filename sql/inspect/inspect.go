// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package inspect builds the normalized table/column model from the
// engine's catalog.
//
// The dialect supplies three parameterless queries with a fixed projection;
// the scanning and all inference passes are engine-agnostic. The columns
// query yields one row per (table, column):
//
//	table_schema, table_name, is_view, column_name, ordinal_position,
//	type_name, max_length, precision, scale, is_nullable, column_default,
//	is_identity, is_computed, is_hidden
//
// The keys query yields one row per constraint column:
//
//	table_schema, table_name, column_name, constraint_type, column_count
//
// and the foreign-keys query one row per foreign-key column:
//
//	table_schema, table_name, column_name, ref_schema, ref_table,
//	ref_column, column_count
//
// Hidden columns (e.g. rowversion) are dropped from the model. Multi-column
// uniques and foreign keys are reported with column_count > 1 and ignored:
// the data loader resolves references through single-column keys only.
package inspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"dbex.io/dbex/sql/dialect"
	"dbex.io/dbex/sql/schema"

	"github.com/go-openapi/inflect"
)

// Config carries the naming conventions driving semantic inference.
type Config struct {
	// Reference-data shape: a non-PK string code column plus a text column.
	RefDataCodeColumn string
	RefDataTextColumn string
	// IDSuffix is the convention suffix linking "<X>Id" columns to a
	// reference-data table "<X>".
	IDSuffix string
	// RefDataAlternateSchemas are additional schemas probed when a
	// referenced ref-data table is not in the referencing table's schema.
	RefDataAlternateSchemas []string
	// Audit and semantic column names.
	CreatedDateColumn string
	CreatedByColumn   string
	UpdatedDateColumn string
	UpdatedByColumn   string
	TenantIDColumn    string
	RowVersionColumn  string
	IsDeletedColumn   string
	JSONSuffix        string
}

// DefaultConfig returns the conventional column names.
func DefaultConfig() Config {
	return Config{
		RefDataCodeColumn: "Code",
		RefDataTextColumn: "Text",
		IDSuffix:          "Id",
		CreatedDateColumn: "CreatedDate",
		CreatedByColumn:   "CreatedBy",
		UpdatedDateColumn: "UpdatedDate",
		UpdatedByColumn:   "UpdatedBy",
		TenantIDColumn:    "TenantId",
		RowVersionColumn:  "RowVersionTimestamp",
		IsDeletedColumn:   "IsDeleted",
		JSONSuffix:        "Json",
	}
}

// An Error reports an introspection failure.
type Error struct {
	Pass string // "columns", "keys", "foreign-keys"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("inspect: %s pass: %v", e.Pass, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Model is the introspected database shape.
type Model struct {
	Tables []*schema.Table

	defaultSchema string
	schemaless    bool // engine has no schema concept (MySQL)
}

// Table returns the table with the given schema and name. An empty schema
// matches the engine's default schema; on a schemaless engine any schema
// name matches, so data files written for a schema-aware engine resolve.
func (m *Model) Table(schemaName, name string) (*schema.Table, bool) {
	if m.schemaless {
		schemaName = ""
	} else if schemaName == "" {
		schemaName = m.defaultSchema
	}
	for _, t := range m.Tables {
		if strings.EqualFold(t.Schema, schemaName) && strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return nil, false
}

// An Inspector introspects a single database into a Model.
type Inspector struct {
	d    dialect.Dialect
	conn schema.ExecQuerier
	cfg  Config
}

// New returns an Inspector over the given connection.
func New(d dialect.Dialect, conn schema.ExecQuerier, cfg Config) *Inspector {
	return &Inspector{d: d, conn: conn, cfg: cfg}
}

// Inspect runs the introspection passes and the semantic inference.
func (i *Inspector) Inspect(ctx context.Context) (*Model, error) {
	ds, ok := i.d.DefaultSchema()
	m := &Model{defaultSchema: ds, schemaless: !ok}
	if err := i.columns(ctx, m); err != nil {
		return nil, err
	}
	if err := i.keys(ctx, m); err != nil {
		return nil, err
	}
	if err := i.foreignKeys(ctx, m); err != nil {
		return nil, err
	}
	i.infer(m)
	return m, nil
}

func (i *Inspector) columns(ctx context.Context, m *Model) error {
	rows, err := i.conn.QueryContext(ctx, i.d.ColumnsQuery())
	if err != nil {
		return &Error{Pass: "columns", Err: err}
	}
	defer rows.Close()
	var cur *schema.Table
	for rows.Next() {
		var (
			tableSchema, tableName, columnName, typeName string
			ordinal                                      int64
			isView, nullable, identity, computed, hidden int64
			length, precision, scale                     sql.NullInt64
			defaultValue                                 sql.NullString
		)
		if err := rows.Scan(
			&tableSchema, &tableName, &isView, &columnName, &ordinal, &typeName,
			&length, &precision, &scale, &nullable, &defaultValue,
			&identity, &computed, &hidden,
		); err != nil {
			return &Error{Pass: "columns", Err: err}
		}
		if hidden == 1 {
			continue
		}
		if cur == nil || cur.Schema != tableSchema || cur.Name != tableName {
			cur = &schema.Table{Schema: tableSchema, Name: tableName, IsView: isView == 1}
			m.Tables = append(m.Tables, cur)
		}
		info := i.d.DataType(typeName)
		cur.Columns = append(cur.Columns, &schema.Column{
			Name:         columnName,
			Type:         typeName,
			DataType:     info.Kind,
			Length:       length.Int64,
			Precision:    precision.Int64,
			Scale:        scale.Int64,
			IsNullable:   nullable == 1,
			IsIdentity:   identity == 1,
			IsComputed:   computed == 1,
			DefaultValue: defaultValue,
		})
	}
	if err := rows.Err(); err != nil {
		return &Error{Pass: "columns", Err: err}
	}
	return nil
}

func (i *Inspector) keys(ctx context.Context, m *Model) error {
	rows, err := i.conn.QueryContext(ctx, i.d.KeysQuery())
	if err != nil {
		return &Error{Pass: "keys", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var (
			tableSchema, tableName, columnName, constraintType string
			count                                              int64
		)
		if err := rows.Scan(&tableSchema, &tableName, &columnName, &constraintType, &count); err != nil {
			return &Error{Pass: "keys", Err: err}
		}
		t, ok := m.Table(tableSchema, tableName)
		if !ok {
			continue
		}
		c, ok := t.Column(columnName)
		if !ok {
			continue
		}
		switch constraintType {
		case "PRIMARY KEY":
			c.IsPrimaryKey = true
		case "UNIQUE":
			if count == 1 {
				c.IsUnique = true
			}
		}
	}
	if err := rows.Err(); err != nil {
		return &Error{Pass: "keys", Err: err}
	}
	return nil
}

func (i *Inspector) foreignKeys(ctx context.Context, m *Model) error {
	rows, err := i.conn.QueryContext(ctx, i.d.ForeignKeysQuery())
	if err != nil {
		return &Error{Pass: "foreign-keys", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var (
			tableSchema, tableName, columnName string
			refSchema, refTable, refColumn     string
			count                              int64
		)
		if err := rows.Scan(&tableSchema, &tableName, &columnName, &refSchema, &refTable, &refColumn, &count); err != nil {
			return &Error{Pass: "foreign-keys", Err: err}
		}
		if count != 1 {
			continue
		}
		t, ok := m.Table(tableSchema, tableName)
		if !ok {
			continue
		}
		c, ok := t.Column(columnName)
		if !ok {
			continue
		}
		c.ForeignSchema, c.ForeignTable, c.ForeignColumn = refSchema, refTable, refColumn
	}
	if err := rows.Err(); err != nil {
		return &Error{Pass: "foreign-keys", Err: err}
	}
	return nil
}

// infer runs the convention-based passes: reference-data shape detection,
// foreign ref-data links (physical or by the <X>Id naming convention) and
// semantic column flags.
func (i *Inspector) infer(m *Model) {
	for _, t := range m.Tables {
		i.inferRefData(t)
		i.inferSemantics(t)
	}
	// Second pass: ref-data links need the full ref-data table set.
	for _, t := range m.Tables {
		for _, c := range t.Columns {
			i.inferForeignRefData(m, t, c)
		}
	}
}

func (i *Inspector) inferRefData(t *schema.Table) {
	code, okCode := t.Column(i.cfg.RefDataCodeColumn)
	text, okText := t.Column(i.cfg.RefDataTextColumn)
	if !okCode || !okText {
		return
	}
	if code.IsPrimaryKey || !isStringType(code) || !isStringType(text) {
		return
	}
	t.IsRefData = true
	t.RefDataCodeColumn = code
	code.IsRefDataCode = true
	text.IsRefDataText = true
}

func (i *Inspector) inferForeignRefData(m *Model, t *schema.Table, c *schema.Column) {
	// Physical foreign key pointing at a ref-data table.
	if c.ForeignTable != "" {
		if ref, ok := m.Table(c.ForeignSchema, c.ForeignTable); ok && ref.IsRefData {
			c.IsForeignRefData = true
			c.ForeignRefDataCodeColumn = ref.RefDataCodeColumn.Name
		}
		return
	}
	// Convention: a non-PK "<X>Id" column referencing ref-data table "<X>"
	// (or its plural) in the same schema or a configured alternate.
	if c.IsPrimaryKey || !strings.HasSuffix(c.Name, i.cfg.IDSuffix) || len(c.Name) == len(i.cfg.IDSuffix) {
		return
	}
	base := c.Name[:len(c.Name)-len(i.cfg.IDSuffix)]
	for _, s := range append([]string{t.Schema}, i.cfg.RefDataAlternateSchemas...) {
		for _, name := range []string{base, inflect.Pluralize(base)} {
			ref, ok := m.Table(s, name)
			if !ok || !ref.IsRefData {
				continue
			}
			pk := ref.PrimaryKey()
			if len(pk) != 1 {
				continue
			}
			c.IsForeignRefData = true
			c.ForeignRefDataCodeColumn = ref.RefDataCodeColumn.Name
			c.ForeignSchema, c.ForeignTable, c.ForeignColumn = ref.Schema, ref.Name, pk[0].Name
			return
		}
	}
}

func (i *Inspector) inferSemantics(t *schema.Table) {
	for _, c := range t.Columns {
		switch {
		case strings.EqualFold(c.Name, i.cfg.CreatedDateColumn), strings.EqualFold(c.Name, i.cfg.CreatedByColumn):
			c.IsCreatedAudit = true
		case strings.EqualFold(c.Name, i.cfg.UpdatedDateColumn), strings.EqualFold(c.Name, i.cfg.UpdatedByColumn):
			c.IsUpdatedAudit = true
		case strings.EqualFold(c.Name, i.cfg.TenantIDColumn):
			c.IsTenantID = true
		case strings.EqualFold(c.Name, i.cfg.RowVersionColumn):
			c.IsRowVersion = true
		case strings.EqualFold(c.Name, i.cfg.IsDeletedColumn):
			c.IsIsDeleted = true
		}
		if i.cfg.JSONSuffix != "" && strings.HasSuffix(c.Name, i.cfg.JSONSuffix) && len(c.Name) > len(i.cfg.JSONSuffix) {
			c.IsJSONContent = true
		}
	}
}

func isStringType(c *schema.Column) bool {
	return c.DataType == schema.TypeString
}
