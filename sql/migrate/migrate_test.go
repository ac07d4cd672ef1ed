// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"dbex.io/dbex/sql/dialect"
	_ "dbex.io/dbex/sql/sqlserver"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testBundle() fstest.MapFS {
	return fstest.MapFS{
		"Migrations/20200101-000000-create-person.sql": &fstest.MapFile{
			Data: []byte("CREATE TABLE [dbo].[Person] ([PersonId] INT PRIMARY KEY)\nGO\n"),
		},
		"Migrations/20200102-000000-add-name.sql": &fstest.MapFile{
			Data: []byte("ALTER TABLE [dbo].[Person] ADD [Name] NVARCHAR(100) NULL\nGO\n"),
		},
		"bootstrap.pre.deploy.sql": &fstest.MapFile{
			Data: []byte("PRINT 'pre'\nGO\n"),
		},
		"finish.post.deploy.sql": &fstest.MapFile{
			Data: []byte("PRINT 'post'\nGO\n"),
		},
		"seed.post.database.create.sql": &fstest.MapFile{
			Data: []byte("PRINT 'once'\nGO\n"),
		},
		"Schema/dbo/Functions/fnGetName.sql": &fstest.MapFile{
			Data: []byte("CREATE FUNCTION [dbo].[fnGetName]() RETURNS NVARCHAR(100) AS BEGIN RETURN N'x' END\nGO\n"),
		},
		"Data/ref.yaml": &fstest.MapFile{
			Data: []byte("Ref:\n  - $Gender:\n      - M: Male\n"),
		},
		"README.md": &fstest.MapFile{Data: []byte("not a script")},
	}
}

func TestSourceClassification(t *testing.T) {
	src, err := NewSource(testBundle())
	require.NoError(t, err)

	migrations := src.Scripts(KindMigrate)
	require.Len(t, migrations, 2)
	require.Equal(t, "20200101-000000-create-person.sql", migrations[0].Name)
	require.Equal(t, "20200102-000000-add-name.sql", migrations[1].Name)

	require.Len(t, src.Scripts(KindPreDeploy), 1)
	require.Len(t, src.Scripts(KindPostDeploy), 1)
	require.Len(t, src.Scripts(KindPostDatabaseCreate), 1)
	require.Len(t, src.Scripts(KindData), 1)

	ss := src.Scripts(KindSchema)
	require.Len(t, ss, 1)
	require.Equal(t, "dbo", ss[0].Schema)

	body, err := migrations[0].ReadAll()
	require.NoError(t, err)
	require.Contains(t, string(body), "CREATE TABLE")
}

func TestSourceProbingOrder(t *testing.T) {
	first := fstest.MapFS{
		"Migrations/20200101-000000-a.sql": &fstest.MapFile{Data: []byte("SELECT 1")},
	}
	second := fstest.MapFS{
		"Migrations/20200101-000000-a.sql": &fstest.MapFile{Data: []byte("SELECT 2")},
		"Migrations/20200102-000000-b.sql": &fstest.MapFile{Data: []byte("SELECT 3")},
	}
	src, err := NewSource(first, second)
	require.NoError(t, err)
	ms := src.Scripts(KindMigrate)
	require.Len(t, ms, 2)
	body, err := ms[0].ReadAll()
	require.NoError(t, err)
	require.Equal(t, "SELECT 1", string(body), "the earlier bundle wins for duplicate names")
}

func TestSourceDuplicateNamesAcrossFolders(t *testing.T) {
	bundle := fstest.MapFS{
		"Schema/Demo/Views/vwItem.sql": &fstest.MapFile{Data: []byte("CREATE VIEW [Demo].[vwItem] AS SELECT 1 AS [n]")},
		"Schema/Ref/Views/vwItem.sql":  &fstest.MapFile{Data: []byte("CREATE VIEW [Ref].[vwItem] AS SELECT 2 AS [n]")},
		"Data/demo/seed.yaml":          &fstest.MapFile{Data: []byte("Demo:\n  - Person:\n      - FirstName: Ann\n")},
		"Data/ref/seed.yaml":           &fstest.MapFile{Data: []byte("Ref:\n  - $Gender:\n      - M: Male\n")},
	}
	src, err := NewSource(bundle)
	require.NoError(t, err)

	// Same filename under different schema folders: both survive.
	ss := src.Scripts(KindSchema)
	require.Len(t, ss, 2)
	require.Equal(t, "Demo", ss[0].Schema)
	require.Equal(t, "Ref", ss[1].Schema)
	for _, s := range ss {
		body, err := s.ReadAll()
		require.NoError(t, err)
		require.Contains(t, string(body), s.Schema)
	}

	require.Len(t, src.Scripts(KindData), 2)
}

func TestParametersExpand(t *testing.T) {
	p := Parameters{"DatabaseName": "Demo", "JournalTable": "SchemaVersions"}
	got := p.Expand("USE [{{DatabaseName}}]; SELECT * FROM [{{JournalTable}}] WHERE x = '{{Unknown}}'")
	require.Equal(t, "USE [Demo]; SELECT * FROM [SchemaVersions] WHERE x = '{{Unknown}}'", got)
}

func TestJournal(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	d, err := dialect.Lookup("sqlserver")
	require.NoError(t, err)
	j := NewJournal(d, db, d.JournalIdent())

	mock.ExpectExec("SchemaVersions").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, j.EnsureExists(context.Background()))

	mock.ExpectQuery("SELECT .ScriptName.").WillReturnRows(
		sqlmock.NewRows([]string{"ScriptName"}).
			AddRow("20200101-000000-a.sql").
			AddRow("20200102-000000-b.sql"),
	)
	executed, err := j.ExecutedScripts(context.Background())
	require.NoError(t, err)
	require.True(t, executed["20200101-000000-a.sql"])
	require.False(t, executed["20200103-000000-c.sql"])

	mock.ExpectExec("INSERT INTO .dbo...SchemaVersions.").
		WithArgs("20200103-000000-c.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, j.Audit(context.Background(), "20200103-000000-c.sql", time.Now()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigratorDestructiveGating(t *testing.T) {
	src, err := NewSource(testBundle())
	require.NoError(t, err)
	m, err := New("sqlserver", "sqlserver://sa:pw@localhost?database=Demo", src)
	require.NoError(t, err)
	defer m.Close()

	// Non-interactive without accept-prompts: refuse before connecting.
	require.ErrorIs(t, m.Run(context.Background(), CommandDrop), ErrNotConfirmed)
	require.ErrorIs(t, m.Run(context.Background(), CommandResetAndData), ErrNotConfirmed)

	// An interactive "no" refuses as well.
	m2, err := New("sqlserver", "sqlserver://sa:pw@localhost?database=Demo", src,
		WithInput(strings.NewReader("no\n")))
	require.NoError(t, err)
	defer m2.Close()
	require.ErrorIs(t, m2.Run(context.Background(), CommandDrop), ErrNotConfirmed)
}

func TestMigratorOutputMode(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	src, err := NewSource(testBundle())
	require.NoError(t, err)
	var out bytes.Buffer
	m, err := New("sqlserver", "sqlserver://sa:pw@localhost?database=Demo", src,
		WithLogger(log),
		WithOutput(&out),
		WithParameters(Parameters{"Region": "en-NZ"}),
	)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Run(context.Background(), CommandDrop|CommandCreate|CommandMigrate|CommandSchema))
	sql := out.String()

	// Drop and Create render the administrative scripts for the target name.
	require.Contains(t, sql, "-- database-drop")
	require.Contains(t, sql, "-- database-create")
	require.Contains(t, sql, "Demo")

	// Migration groups render in order: pre-deploy, migrations,
	// post-database-create, post-deploy.
	order := []string{
		"bootstrap.pre.deploy.sql",
		"20200101-000000-create-person.sql",
		"20200102-000000-add-name.sql",
		"seed.post.database.create.sql",
		"finish.post.deploy.sql",
		"fnGetName",
	}
	last := -1
	for _, name := range order {
		i := strings.Index(sql, name)
		require.Greater(t, i, last, "expected %q after the previous script", name)
		last = i
	}

	// The schema phase drops before it creates.
	require.Less(t,
		strings.Index(sql, "DROP FUNCTION IF EXISTS [dbo].[fnGetName]"),
		strings.Index(sql, "CREATE FUNCTION [dbo].[fnGetName]"))
}

var columnCols = []string{
	"table_schema", "table_name", "is_view", "column_name", "ordinal_position",
	"type_name", "max_length", "precision", "scale", "is_nullable",
	"column_default", "is_identity", "is_computed", "is_hidden",
}

func TestMigratorReset(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	src, err := NewSource(testBundle())
	require.NoError(t, err)
	m, err := New("sqlserver", "sqlserver://sa:pw@localhost?database=Demo", src,
		WithLogger(log),
		WithAcceptPrompts(),
		WithParameters(Parameters{ParamJournalSchema: "Demo"}),
	)
	require.NoError(t, err)
	m.target = db

	mock.ExpectQuery("INFORMATION_SCHEMA...COLUMNS").WillReturnRows(
		sqlmock.NewRows(columnCols).
			AddRow("Demo", "Gender", 0, "GenderId", 1, "int", nil, 10, 0, 0, nil, 1, 0, 0).
			AddRow("Demo", "Person", 0, "PersonId", 1, "int", nil, 10, 0, 0, nil, 1, 0, 0).
			AddRow("Demo", "Person", 0, "GenderId", 2, "int", nil, 10, 0, 1, nil, 0, 0, 0).
			AddRow("Demo", "SchemaVersions", 0, "ScriptName", 1, "nvarchar", 255, nil, nil, 0, nil, 0, 0, 0).
			AddRow("Demo", "vwPerson", 1, "PersonId", 1, "int", nil, 10, 0, 0, nil, 0, 0, 0).
			AddRow("dbo", "Audit", 0, "AuditId", 1, "int", nil, 10, 0, 0, nil, 1, 0, 0),
	)
	mock.ExpectQuery("KEY_COLUMN_USAGE").WillReturnRows(
		sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "constraint_type", "column_count"}).
			AddRow("Demo", "Gender", "GenderId", "PRIMARY KEY", 1).
			AddRow("Demo", "Person", "PersonId", "PRIMARY KEY", 1),
	)
	mock.ExpectQuery("REFERENTIAL_CONSTRAINTS").WillReturnRows(
		sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "ref_schema", "ref_table", "ref_column", "column_count"}).
			AddRow("Demo", "Person", "GenderId", "Demo", "Gender", "GenderId", 1),
	)

	// One transaction; the referencing table first, the journal, views
	// and excluded schemas never touched.
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM .Demo...Person.").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM .Demo...Gender.").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, m.Run(context.Background(), CommandReset))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigratorDataPhase(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	src, err := NewSource(testBundle())
	require.NoError(t, err)
	var out bytes.Buffer
	m, err := New("sqlserver", "sqlserver://sa:pw@localhost?database=Demo", src,
		WithLogger(log),
		WithOutput(&out),
	)
	require.NoError(t, err)
	m.target = db

	mock.ExpectQuery("INFORMATION_SCHEMA...COLUMNS").WillReturnRows(
		sqlmock.NewRows(columnCols).
			AddRow("Ref", "Gender", 0, "Code", 1, "nvarchar", 50, nil, nil, 0, nil, 0, 0, 0).
			AddRow("Ref", "Gender", 0, "Text", 2, "nvarchar", 250, nil, nil, 1, nil, 0, 0, 0),
	)
	mock.ExpectQuery("KEY_COLUMN_USAGE").WillReturnRows(
		sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "constraint_type", "column_count"}),
	)
	mock.ExpectQuery("REFERENTIAL_CONSTRAINTS").WillReturnRows(
		sqlmock.NewRows([]string{"table_schema", "table_name", "column_name", "ref_schema", "ref_table", "ref_column", "column_count"}),
	)

	require.NoError(t, m.Run(context.Background(), CommandData))
	require.NoError(t, mock.ExpectationsWereMet())

	sql := out.String()
	require.Contains(t, sql, "-- data:[Ref].[Gender]")
	require.Contains(t, sql, "MERGE INTO [Ref].[Gender]")
	require.Contains(t, sql, "N'Male'")
}

func TestMigratorExecuteOutput(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	src, err := NewSource(testBundle())
	require.NoError(t, err)
	var out bytes.Buffer
	m, err := New("sqlserver", "sqlserver://sa:pw@localhost?database=Demo", src,
		WithLogger(log),
		WithOutput(&out),
	)
	require.NoError(t, err)
	defer m.Close()

	// Output mode renders without dialing the database.
	require.NoError(t, m.Execute(context.Background(), "SELECT 1 AS [n]"))
	require.Contains(t, out.String(), "-- execute-1")
	require.Contains(t, out.String(), "SELECT 1 AS [n]")
}

func TestMigratorCommandAggregates(t *testing.T) {
	require.True(t, CommandAll.Has(CommandCreate))
	require.True(t, CommandAll.Has(CommandMigrate))
	require.True(t, CommandAll.Has(CommandSchema))
	require.True(t, CommandAll.Has(CommandData))
	require.False(t, CommandAll.Has(CommandDrop))
	require.False(t, CommandAll.Has(CommandReset))
	require.True(t, CommandDropAndAll.Has(CommandDrop))
	require.True(t, CommandResetAndData.Has(CommandReset|CommandData))
	require.False(t, CommandResetAndData.Has(CommandMigrate))
}

func TestCreateScript(t *testing.T) {
	dir := t.TempDir()
	p, err := CreateScript(dir, "add-person", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "20240102-030405-add-person.sql", strings.TrimPrefix(p, dir+string(os.PathSeparator)+"Migrations"+string(os.PathSeparator)))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Contains(t, string(b), "20240102-030405-add-person.sql")
}
