// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlparse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit_Semicolon(t *testing.T) {
	for _, tt := range []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "two statements",
			input: "CREATE TABLE t (id int);\nINSERT INTO t VALUES (1);",
			want:  []string{"CREATE TABLE t (id int)", "INSERT INTO t VALUES (1)"},
		},
		{
			name:  "no trailing delimiter",
			input: "SELECT 1",
			want:  []string{"SELECT 1"},
		},
		{
			name:  "semicolon in string",
			input: "INSERT INTO t VALUES ('a;b');",
			want:  []string{"INSERT INTO t VALUES ('a;b')"},
		},
		{
			name:  "escaped quote in string",
			input: "INSERT INTO t VALUES ('it''s; fine'); SELECT 1;",
			want:  []string{"INSERT INTO t VALUES ('it''s; fine')", "SELECT 1"},
		},
		{
			name:  "semicolon in quoted identifier",
			input: "SELECT `a;b` FROM t; SELECT \"c;d\" FROM t;",
			want:  []string{"SELECT `a;b` FROM t", "SELECT \"c;d\" FROM t"},
		},
		{
			name:  "semicolon in comments",
			input: "SELECT 1 -- trailing; comment\n; SELECT 2 /* block; comment */;",
			want:  []string{"SELECT 1 -- trailing; comment", "SELECT 2 /* block; comment */"},
		},
		{
			name:  "comment only input",
			input: "-- nothing here\n/* or here */",
			want:  nil,
		},
		{
			name:  "empty statements dropped",
			input: ";;;SELECT 1;;",
			want:  []string{"SELECT 1"},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.input, DelimiterSemicolon, DefaultQuoting)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSplit_Go(t *testing.T) {
	for _, tt := range []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "batches",
			input: "CREATE TABLE t (id int)\nGO\nINSERT INTO t VALUES (1)\nGO",
			want:  []string{"CREATE TABLE t (id int)", "INSERT INTO t VALUES (1)"},
		},
		{
			name:  "case insensitive with whitespace",
			input: "SELECT 1\n  go  \nSELECT 2",
			want:  []string{"SELECT 1", "SELECT 2"},
		},
		{
			name:  "go inside string literal",
			input: "INSERT INTO t VALUES ('line1\nGO\nline2')\nGO",
			want:  []string{"INSERT INTO t VALUES ('line1\nGO\nline2')"},
		},
		{
			name:  "go not alone on line",
			input: "SELECT 1 GO\nGO",
			want:  []string{"SELECT 1 GO"},
		},
		{
			name:  "semicolons kept inside batch",
			input: "SELECT 1;\nSELECT 2;\nGO",
			want:  []string{"SELECT 1;\nSELECT 2;"},
		},
		{
			name:  "bracketed identifier",
			input: "SELECT [weird\nGO\nname] FROM t\nGO",
			want:  []string{"SELECT [weird\nGO\nname] FROM t"},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.input, DelimiterGo, DefaultQuoting)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSplit_SyntaxErrors(t *testing.T) {
	for _, tt := range []struct {
		name, input string
	}{
		{"unterminated string", "SELECT 'abc"},
		{"unterminated block comment", "SELECT 1 /* no end"},
		{"unterminated bracket", "SELECT [abc FROM t"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split(tt.input, DelimiterSemicolon, DefaultQuoting)
			require.Error(t, err)
			var serr *SyntaxError
			require.ErrorAs(t, err, &serr)
		})
	}
}

func TestScanner(t *testing.T) {
	s := NewScanner("-- header\nCREATE OR ALTER PROCEDURE [dbo].[Get ]] Person] AS BEGIN END", DefaultQuoting)
	var got []Token
	for {
		tok, err := s.Next()
		require.NoError(t, err)
		if tok.Kind == TokenEOF {
			break
		}
		got = append(got, tok)
		if len(got) > 8 {
			break
		}
	}
	require.Equal(t, "CREATE", got[0].Text)
	require.Equal(t, "OR", got[1].Text)
	require.Equal(t, "ALTER", got[2].Text)
	require.Equal(t, "PROCEDURE", got[3].Text)
	require.Equal(t, TokenQuoted, got[4].Kind)
	require.Equal(t, "dbo", got[4].Text)
	require.Equal(t, ".", got[5].Text)
	require.Equal(t, "Get ] Person", got[6].Text)
}
