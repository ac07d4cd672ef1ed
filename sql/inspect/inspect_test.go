// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package inspect

import (
	"context"
	"testing"

	"dbex.io/dbex/sql/dialect"
	_ "dbex.io/dbex/sql/mysql"
	_ "dbex.io/dbex/sql/sqlserver"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

var columnCols = []string{
	"table_schema", "table_name", "is_view", "column_name", "ordinal_position",
	"type_name", "max_length", "precision", "scale", "is_nullable",
	"column_default", "is_identity", "is_computed", "is_hidden",
}

func TestInspect(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	d, err := dialect.Lookup("sqlserver")
	require.NoError(t, err)

	mock.ExpectQuery("INFORMATION_SCHEMA...COLUMNS").WillReturnRows(
		sqlmock.NewRows(columnCols).
			AddRow("dbo", "Gender", 0, "GenderId", 1, "int", nil, 10, 0, 0, nil, 1, 0, 0).
			AddRow("dbo", "Gender", 0, "Code", 2, "nvarchar", 50, nil, nil, 0, nil, 0, 0, 0).
			AddRow("dbo", "Gender", 0, "Text", 3, "nvarchar", 250, nil, nil, 1, nil, 0, 0, 0).
			AddRow("dbo", "Person", 0, "PersonId", 1, "uniqueidentifier", nil, nil, nil, 0, nil, 0, 0, 0).
			AddRow("dbo", "Person", 0, "FirstName", 2, "nvarchar", 100, nil, nil, 1, nil, 0, 0, 0).
			AddRow("dbo", "Person", 0, "GenderId", 3, "int", nil, 10, 0, 1, nil, 0, 0, 0).
			AddRow("dbo", "Person", 0, "CreatedBy", 4, "nvarchar", 250, nil, nil, 1, nil, 0, 0, 0).
			AddRow("dbo", "Person", 0, "CreatedDate", 5, "datetime2", nil, nil, nil, 1, nil, 0, 0, 0).
			AddRow("dbo", "Person", 0, "RowVersionTimestamp", 6, "rowversion", nil, nil, nil, 0, nil, 0, 0, 1).
			AddRow("dbo", "Person", 0, "FullName", 7, "nvarchar", 200, nil, nil, 1, nil, 0, 1, 0),
	)
	mock.ExpectQuery("KEY_COLUMN_USAGE").WillReturnRows(
		sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "constraint_type", "column_count"}).
			AddRow("dbo", "Gender", "GenderId", "PRIMARY KEY", 1).
			AddRow("dbo", "Gender", "Code", "UNIQUE", 1).
			AddRow("dbo", "Person", "PersonId", "PRIMARY KEY", 1),
	)
	mock.ExpectQuery("REFERENTIAL_CONSTRAINTS").WillReturnRows(
		sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "ref_schema", "ref_table", "ref_column", "column_count"}),
	)

	m, err := New(d, db, DefaultConfig()).Inspect(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, m.Tables, 2)

	gender, ok := m.Table("dbo", "Gender")
	require.True(t, ok)
	require.True(t, gender.IsRefData)
	require.Equal(t, "Code", gender.RefDataCodeColumn.Name)
	id, _ := gender.Column("GenderId")
	require.True(t, id.IsPrimaryKey)
	require.True(t, id.IsIdentity)
	code, _ := gender.Column("Code")
	require.True(t, code.IsUnique)
	require.True(t, code.IsRefDataCode)

	person, ok := m.Table("", "Person")
	require.True(t, ok, "empty schema resolves to the default schema")
	require.False(t, person.IsRefData)

	// Hidden rowversion column dropped from the model.
	_, ok = person.Column("RowVersionTimestamp")
	require.False(t, ok)

	// GenderId has no physical FK but links to ref-data by convention.
	gid, _ := person.Column("GenderId")
	require.True(t, gid.IsForeignRefData)
	require.Equal(t, "Code", gid.ForeignRefDataCodeColumn)
	require.Equal(t, "Gender", gid.ForeignTable)
	require.Equal(t, "GenderId", gid.ForeignColumn)

	// Semantic flags.
	cb, _ := person.Column("CreatedBy")
	require.True(t, cb.IsCreatedAudit)
	fn, _ := person.Column("FullName")
	require.True(t, fn.IsComputed)
}

func TestInspect_PluralRefDataTable(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	d, err := dialect.Lookup("sqlserver")
	require.NoError(t, err)

	mock.ExpectQuery("INFORMATION_SCHEMA...COLUMNS").WillReturnRows(
		sqlmock.NewRows(columnCols).
			AddRow("dbo", "Statuses", 0, "StatusesId", 1, "int", nil, 10, 0, 0, nil, 1, 0, 0).
			AddRow("dbo", "Statuses", 0, "Code", 2, "nvarchar", 50, nil, nil, 0, nil, 0, 0, 0).
			AddRow("dbo", "Statuses", 0, "Text", 3, "nvarchar", 250, nil, nil, 1, nil, 0, 0, 0).
			AddRow("dbo", "Order", 0, "OrderId", 1, "int", nil, 10, 0, 0, nil, 1, 0, 0).
			AddRow("dbo", "Order", 0, "StatusId", 2, "int", nil, 10, 0, 1, nil, 0, 0, 0),
	)
	mock.ExpectQuery("KEY_COLUMN_USAGE").WillReturnRows(
		sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "constraint_type", "column_count"}).
			AddRow("dbo", "Statuses", "StatusesId", "PRIMARY KEY", 1).
			AddRow("dbo", "Order", "OrderId", "PRIMARY KEY", 1),
	)
	mock.ExpectQuery("REFERENTIAL_CONSTRAINTS").WillReturnRows(
		sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "ref_schema", "ref_table", "ref_column", "column_count"}),
	)

	m, err := New(d, db, DefaultConfig()).Inspect(context.Background())
	require.NoError(t, err)

	order, ok := m.Table("dbo", "Order")
	require.True(t, ok)
	sid, _ := order.Column("StatusId")
	require.True(t, sid.IsForeignRefData, "Status resolves to the pluralized Statuses table")
	require.Equal(t, "Statuses", sid.ForeignTable)
}

func TestInspect_SchemalessEngine(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	d, err := dialect.Lookup("mysql")
	require.NoError(t, err)

	mock.ExpectQuery("information_schema.COLUMNS").WillReturnRows(
		sqlmock.NewRows(columnCols).
			AddRow("", "gender", 0, "code", 1, "varchar", 50, nil, nil, 0, nil, 0, 0, 0).
			AddRow("", "gender", 0, "text", 2, "varchar", 250, nil, nil, 1, nil, 0, 0, 0).
			AddRow("", "person", 0, "personid", 1, "int", nil, 10, 0, 0, nil, 1, 0, 0),
	)
	mock.ExpectQuery("KEY_COLUMN_USAGE").WillReturnRows(
		sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "constraint_type", "column_count"}).
			AddRow("", "person", "personid", "PRIMARY KEY", 1),
	)
	mock.ExpectQuery("REFERENCED_TABLE_NAME").WillReturnRows(
		sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "ref_schema", "ref_table", "ref_column", "column_count"}),
	)

	cfg := DefaultConfig()
	cfg.RefDataCodeColumn, cfg.RefDataTextColumn = "code", "text"
	m, err := New(d, db, cfg).Inspect(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	// MySQL has no schema concept: data files written with schema keys
	// still resolve, whatever the key says.
	for _, schemaName := range []string{"", "demo", "Ref"} {
		p, ok := m.Table(schemaName, "Person")
		require.True(t, ok, "schema key %q", schemaName)
		require.Equal(t, "person", p.Name)
	}
	g, ok := m.Table("ref", "gender")
	require.True(t, ok)
	require.True(t, g.IsRefData)
}

func TestInspect_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	d, err := dialect.Lookup("sqlserver")
	require.NoError(t, err)

	mock.ExpectQuery("INFORMATION_SCHEMA...COLUMNS").WillReturnError(context.DeadlineExceeded)

	_, err = New(d, db, DefaultConfig()).Inspect(context.Background())
	var ierr *Error
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, "columns", ierr.Pass)
}
