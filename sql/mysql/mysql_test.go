// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mysql

import (
	"testing"

	"dbex.io/dbex/sql/dialect"

	"github.com/stretchr/testify/require"
)

func TestConnectionString(t *testing.T) {
	d := &mysql{}
	cs := "root:pw@tcp(localhost:3306)/demo?parseTime=true"

	name, err := d.DatabaseName(cs)
	require.NoError(t, err)
	require.Equal(t, "demo", name)

	// The administrative connection clears the database name.
	admin, err := d.WithDatabase(cs, d.AdminDatabase())
	require.NoError(t, err)
	got, err := d.DatabaseName(admin)
	require.NoError(t, err)
	require.Equal(t, "", got)
}

func TestMergeSQL(t *testing.T) {
	d := &mysql{}
	got := d.MergeSQL(&dialect.Merge{
		Table:   "`gender`",
		Columns: []string{"`code`", "`text`"},
		Rows:    [][]string{{"'M'", "'Male'"}},
		On:      []string{"`code`"},
		Insert:  []string{"`code`", "`text`"},
		Update:  []string{"`text`"},
	})
	require.Contains(t, got, "INSERT INTO `gender` (`code`, `text`) VALUES ('M', 'Male')")
	require.Contains(t, got, "AS `new` ON DUPLICATE KEY UPDATE `text` = `new`.`text`")
}

func TestFormatValue(t *testing.T) {
	d := &mysql{}
	require.Equal(t, `'it''s a \\'`, d.FormatValue(dialect.Value{Kind: dialect.KindString, String: `it's a \`}))
	require.Equal(t, "1", d.FormatValue(dialect.Value{Kind: dialect.KindBool, Bool: true}))
}

func TestResetFilter(t *testing.T) {
	d := &mysql{}
	require.True(t, d.ResetFilter("", "person"))
	require.False(t, d.ResetFilter("mysql", "user"))
	require.False(t, d.ResetFilter("performance_schema", "hosts"))
}
