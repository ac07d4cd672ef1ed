// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package postgres

import (
	"testing"

	"dbex.io/dbex/sql/dialect"

	"github.com/stretchr/testify/require"
)

func TestConnectionString(t *testing.T) {
	d := &postgres{}
	cs := "postgres://app:pw@localhost:5432/demo?sslmode=disable"

	name, err := d.DatabaseName(cs)
	require.NoError(t, err)
	require.Equal(t, "demo", name)

	admin, err := d.WithDatabase(cs, d.AdminDatabase())
	require.NoError(t, err)
	got, err := d.DatabaseName(admin)
	require.NoError(t, err)
	require.Equal(t, "postgres", got)
}

func TestMergeSQL(t *testing.T) {
	d := &postgres{}
	got := d.MergeSQL(&dialect.Merge{
		Table:   `"ref"."gender"`,
		Columns: []string{`"code"`, `"text"`},
		Rows:    [][]string{{"'M'", "'Male'"}},
		On:      []string{`"code"`},
		Insert:  []string{`"code"`, `"text"`},
		Update:  []string{`"text"`},
	})
	require.Contains(t, got, `MERGE INTO "ref"."gender" AS "t" USING (VALUES ('M', 'Male')) AS "s" ("code", "text")`)
	require.Contains(t, got, `ON "t"."code" = "s"."code"`)
	require.Contains(t, got, `WHEN MATCHED THEN UPDATE SET "text" = "s"."text"`)
	require.Contains(t, got, `WHEN NOT MATCHED THEN INSERT ("code", "text") VALUES ("s"."code", "s"."text")`)
}

func TestFormatValue(t *testing.T) {
	d := &postgres{}
	require.Equal(t, "TRUE", d.FormatValue(dialect.Value{Kind: dialect.KindBool, Bool: true}))
	require.Equal(t, `'\xdead'`, d.FormatValue(dialect.Value{Kind: dialect.KindBytes, Bytes: []byte{0xde, 0xad}}))
	require.Equal(t, "'it''s'", d.FormatValue(dialect.Value{Kind: dialect.KindString, String: "it's"}))
}

func TestResetFilter(t *testing.T) {
	d := &postgres{}
	require.True(t, d.ResetFilter("public", "person"))
	require.False(t, d.ResetFilter("pg_catalog", "pg_class"))
	require.False(t, d.ResetFilter("information_schema", "tables"))
}
