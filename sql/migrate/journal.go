// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

import (
	"context"
	"fmt"
	"time"

	"dbex.io/dbex/sql/dialect"
	"dbex.io/dbex/sql/schema"
	"dbex.io/dbex/sql/sqlparse"
)

// A Journal is the persisted ledger of executed migration-script names.
// It lives in the target database and is exempt from the Reset phase.
type Journal struct {
	d     dialect.Dialect
	conn  schema.ExecQuerier
	ident dialect.Ident
}

// NewJournal returns a journal over the given connection. The identifier
// is usually the dialect default, overridden by the JournalSchema and
// JournalTable session parameters.
func NewJournal(d dialect.Dialect, conn schema.ExecQuerier, ident dialect.Ident) *Journal {
	return &Journal{d: d, conn: conn, ident: ident}
}

// Ident returns the journal's qualified identifier.
func (j *Journal) Ident() dialect.Ident { return j.ident }

// EnsureExists creates the journal table when it does not exist yet.
func (j *Journal) EnsureExists(ctx context.Context) error {
	stmts, err := sqlparse.Split(j.d.JournalCreateSQL(j.ident), j.d.Delimiter(), j.d.Quoting())
	if err != nil {
		return fmt.Errorf("migrate: journal DDL: %w", err)
	}
	for _, s := range stmts {
		if _, err := j.conn.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: create journal %s.%s: %w", j.ident.Schema, j.ident.Name, err)
		}
	}
	return nil
}

// ExecutedScripts returns the set of journalled script names.
func (j *Journal) ExecutedScripts(ctx context.Context) (map[string]bool, error) {
	rows, err := j.conn.QueryContext(ctx, j.d.JournalSelectSQL(j.ident))
	if err != nil {
		return nil, fmt.Errorf("migrate: read journal: %w", err)
	}
	defer rows.Close()
	executed := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("migrate: read journal: %w", err)
		}
		executed[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("migrate: read journal: %w", err)
	}
	return executed, nil
}

// Audit appends an execution entry for the named script.
func (j *Journal) Audit(ctx context.Context, name string, applied time.Time) error {
	if _, err := j.conn.ExecContext(ctx, j.d.JournalInsertSQL(j.ident), name, applied.UTC()); err != nil {
		return fmt.Errorf("migrate: audit script %q: %w", name, err)
	}
	return nil
}
