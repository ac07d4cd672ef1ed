// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlserver

import (
	"testing"
	"time"

	"dbex.io/dbex/sql/dialect"
	"dbex.io/dbex/sql/schema"

	"github.com/stretchr/testify/require"
)

func TestFormatValue(t *testing.T) {
	d := &sqlserver{}
	for _, tt := range []struct {
		v    dialect.Value
		want string
	}{
		{dialect.Value{Kind: dialect.KindNull}, "NULL"},
		{dialect.Value{Kind: dialect.KindBool, Bool: true}, "1"},
		{dialect.Value{Kind: dialect.KindBool}, "0"},
		{dialect.Value{Kind: dialect.KindInt, Int: -42}, "-42"},
		{dialect.Value{Kind: dialect.KindFloat, Float: 1.5}, "1.5"},
		{dialect.Value{Kind: dialect.KindString, String: "it's"}, "'it''s'"},
		{dialect.Value{Kind: dialect.KindString, String: "Māori", Unicode: true}, "N'Māori'"},
		{dialect.Value{Kind: dialect.KindBytes, Bytes: []byte{0xde, 0xad}}, "0xdead"},
		{dialect.Value{Kind: dialect.KindDateOnly, Time: time.Date(1985, 3, 18, 0, 0, 0, 0, time.UTC)}, "'1985-03-18'"},
	} {
		require.Equal(t, tt.want, d.FormatValue(tt.v))
	}
}

func TestMergeSQL(t *testing.T) {
	d := &sqlserver{}
	got := d.MergeSQL(&dialect.Merge{
		Table:   "[Ref].[Gender]",
		Columns: []string{"[Code]", "[Text]"},
		Rows:    [][]string{{"N'M'", "N'Male'"}, {"N'F'", "N'Female'"}},
		On:      []string{"[Code]"},
		Insert:  []string{"[Code]", "[Text]"},
		Update:  []string{"[Text]"},
	})
	require.Equal(t,
		"MERGE INTO [Ref].[Gender] AS [t] USING (VALUES (N'M', N'Male'), (N'F', N'Female')) AS [s] ([Code], [Text])"+
			" ON [t].[Code] = [s].[Code]"+
			" WHEN MATCHED THEN UPDATE SET [t].[Text] = [s].[Text]"+
			" WHEN NOT MATCHED THEN INSERT ([Code], [Text]) VALUES ([s].[Code], [s].[Text]);",
		got)
}

func TestConnectionString(t *testing.T) {
	d := &sqlserver{}
	cs := "sqlserver://sa:pw@localhost:1433?database=Demo&encrypt=disable"

	name, err := d.DatabaseName(cs)
	require.NoError(t, err)
	require.Equal(t, "Demo", name)

	admin, err := d.WithDatabase(cs, d.AdminDatabase())
	require.NoError(t, err)
	got, err := d.DatabaseName(admin)
	require.NoError(t, err)
	require.Equal(t, "master", got)
}

func TestDataType(t *testing.T) {
	d := &sqlserver{}
	require.Equal(t, schema.TypeInt, d.DataType("int").Kind)
	require.Equal(t, schema.TypeLong, d.DataType("bigint").Kind)
	require.Equal(t, schema.TypeGUID, d.DataType("uniqueidentifier").Kind)
	require.Equal(t, schema.TypeDateOnly, d.DataType("date").Kind)
	require.True(t, d.DataType("nvarchar").IsUnicodeText)
	require.False(t, d.DataType("varchar").IsUnicodeText)
}

func TestResetFilter(t *testing.T) {
	d := &sqlserver{}
	require.False(t, d.ResetFilter("dbo", "Person"))
	require.False(t, d.ResetFilter("cdc", "change_tables"))
	require.True(t, d.ResetFilter("Demo", "Person"))
}

func TestResources(t *testing.T) {
	d := &sqlserver{}
	require.Contains(t, d.DatabaseCreateSQL("Demo"), "CREATE DATABASE [Demo]")
	require.Contains(t, d.DatabaseDropSQL("Demo"), "[Demo]")
	j := dialect.Ident{Schema: "dbo", Name: "SchemaVersions"}
	create := d.JournalCreateSQL(j)
	require.Contains(t, create, "[dbo].[SchemaVersions]")
	require.NotContains(t, create, "{{")
}
