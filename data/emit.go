// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package data

import (
	"fmt"
	"strings"

	"dbex.io/dbex/sql/dialect"
	"dbex.io/dbex/internal/sqlx"
	"dbex.io/dbex/sql/schema"
)

// A DependencyCycleError reports a foreign-key cycle among the emitted
// tables. Cyclic graphs require explicitly supplied identifiers and
// separate files.
type DependencyCycleError struct {
	Err error
}

func (e *DependencyCycleError) Error() string { return "data: " + e.Err.Error() }

func (e *DependencyCycleError) Unwrap() error { return e.Err }

// A Statement is one renderable SQL statement attributed to its table.
type Statement struct {
	Table string
	SQL   string
}

// SQL applies defaults and parent-key cascades, orders the tables so
// referenced rows are inserted first, and renders every table to SQL.
func (l *Loader) SQL() ([]Statement, error) {
	if err := l.prepare(); err != nil {
		return nil, err
	}
	ordered, err := l.order()
	if err != nil {
		return nil, err
	}
	var stmts []Statement
	for _, t := range ordered {
		stmts = append(stmts, l.render(t)...)
	}
	return stmts, nil
}

// prepare applies the post-parse passes to every row: audit defaults,
// ref-data defaults, generated identifiers, user defaults and finally
// the parent-to-child primary-key cascade.
func (l *Loader) prepare() error {
	if l.prepared {
		return nil
	}
	l.prepared = true
	for _, t := range l.tables {
		for i, row := range t.Rows {
			l.applyAudit(t, row)
			l.applyRefDataDefaults(t, row, i)
			l.applyGeneratedID(t, row)
			if err := l.applyUserDefaults(t, row); err != nil {
				return err
			}
		}
	}
	for _, c := range l.cascades {
		for _, pk := range c.parent.PrimaryKey() {
			src, ok := c.parentRow.Cell(pk.Name)
			if !ok {
				continue
			}
			cc, ok := c.child.Table.Column(pk.Name)
			if !ok {
				continue
			}
			if _, set := c.childRow.Cell(cc.Name); set {
				continue
			}
			c.childRow.Cells = append(c.childRow.Cells, &Cell{
				Column:     cc,
				Value:      src.Value,
				UseFKQuery: src.UseFKQuery,
				FKCode:     src.FKCode,
			})
		}
	}
	return nil
}

func (l *Loader) applyAudit(t *Table, row *Row) {
	for _, c := range t.Table.Columns {
		if !c.IsCreatedAudit && !c.IsUpdatedAudit {
			continue
		}
		if _, set := row.Cell(c.Name); set {
			continue
		}
		var v dialect.Value
		if c.DataType == schema.TypeDateTime {
			v = dialect.Value{Kind: dialect.KindDateTime, Time: l.cfg.Now}
		} else {
			if l.cfg.UserName == "" {
				continue
			}
			v = dialect.Value{Kind: dialect.KindString, String: l.cfg.UserName}
		}
		row.Cells = append(row.Cells, &Cell{Column: c, Value: v})
	}
}

func (l *Loader) applyRefDataDefaults(t *Table, row *Row, index int) {
	if !t.Table.IsRefData {
		return
	}
	if c, ok := t.Table.Column(l.cfg.IsActiveColumn); ok && l.cfg.IsActiveColumn != "" {
		if _, set := row.Cell(c.Name); !set {
			row.Cells = append(row.Cells, &Cell{Column: c, Value: dialect.Value{Kind: dialect.KindBool, Bool: true}})
		}
	}
	if c, ok := t.Table.Column(l.cfg.SortOrderColumn); ok && l.cfg.SortOrderColumn != "" {
		if _, set := row.Cell(c.Name); !set {
			row.Cells = append(row.Cells, &Cell{Column: c, Value: dialect.Value{Kind: dialect.KindInt, Int: int64(index + 1)}})
		}
	}
}

func (l *Loader) applyGeneratedID(t *Table, row *Row) {
	if !t.GenerateID {
		return
	}
	pk := t.Table.PrimaryKey()
	if len(pk) != 1 {
		return
	}
	if _, set := row.Cell(pk[0].Name); set {
		return
	}
	row.Cells = append(row.Cells, &Cell{Column: pk[0], Value: l.generate(pk[0]), Generated: true})
}

// applyUserDefaults resolves per-column defaults by the most specific
// (schema, table) match: exact, then any-table, then any-schema.
func (l *Loader) applyUserDefaults(t *Table, row *Row) error {
	for _, c := range t.Table.Columns {
		if _, set := row.Cell(c.Name); set {
			continue
		}
		var (
			best      *ColumnDefault
			bestScore = -1
		)
		for i := range l.cfg.Defaults {
			d := &l.cfg.Defaults[i]
			if !strings.EqualFold(d.Column, c.Name) {
				continue
			}
			score := matchScore(d.Schema, t.Table.Schema)*2 + matchScore(d.Table, t.Table.Name)
			if score < 0 || score <= bestScore {
				continue
			}
			best, bestScore = d, score
		}
		if best == nil {
			continue
		}
		v, fk, err := l.coerceString(t, c, fmt.Sprint(best.Value), true)
		if err != nil {
			return err
		}
		cell := &Cell{Column: c, Value: v}
		if fk {
			cell.UseFKQuery, cell.FKCode = true, v.String
		}
		row.Cells = append(row.Cells, cell)
	}
	return nil
}

// matchScore returns 1 for an exact match, 0 for the "*" wildcard and
// -1 for no match.
func matchScore(pattern, name string) int {
	switch {
	case pattern == "*" || pattern == "":
		return 0
	case strings.EqualFold(pattern, name):
		return 1
	}
	return -1
}

// order sorts the parsed tables so foreign-key targets precede their
// referents; ties keep input order.
func (l *Loader) order() ([]*Table, error) {
	var (
		nodes  []string
		byName = make(map[string][]*Table)
		deps   = make(map[string][]string)
	)
	for _, t := range l.tables {
		key := t.Table.QualifiedName()
		if _, ok := byName[key]; !ok {
			nodes = append(nodes, key)
		}
		byName[key] = append(byName[key], t)
	}
	for _, t := range l.tables {
		key := t.Table.QualifiedName()
		for _, c := range t.Table.Columns {
			if c.ForeignTable == "" {
				continue
			}
			ft, ok := l.model.Table(c.ForeignSchema, c.ForeignTable)
			if !ok {
				continue
			}
			fkey := ft.QualifiedName()
			if _, emitted := byName[fkey]; emitted && fkey != key {
				deps[key] = append(deps[key], fkey)
			}
		}
	}
	sorted, err := sqlx.SortTopological(nodes, deps)
	if err != nil {
		return nil, &DependencyCycleError{Err: err}
	}
	var ordered []*Table
	for _, key := range sorted {
		ordered = append(ordered, byName[key]...)
	}
	return ordered, nil
}

func (l *Loader) render(t *Table) []Statement {
	qualified := l.qualified(t.Table)
	var stmts []Statement
	wrap := strings.NewReplacer("{{schema}}", t.Table.Schema, "{{table}}", t.Table.Name)
	if t.config != nil && t.config.preConditionSQL != "" {
		stmts = append(stmts, Statement{Table: qualified, SQL: wrap.Replace(t.config.preConditionSQL)})
	}
	if t.config != nil && t.config.preSQL != "" {
		stmts = append(stmts, Statement{Table: qualified, SQL: wrap.Replace(t.config.preSQL)})
	}
	if len(t.Rows) > 0 {
		if t.IsMerge {
			stmts = append(stmts, Statement{Table: qualified, SQL: l.renderMerge(t, qualified)})
		} else {
			stmts = append(stmts, Statement{Table: qualified, SQL: l.renderInsert(t, qualified)})
		}
	}
	if t.config != nil && t.config.postSQL != "" {
		stmts = append(stmts, Statement{Table: qualified, SQL: wrap.Replace(t.config.postSQL)})
	}
	return stmts
}

// columns returns the union of the rows' columns in first-seen order.
func columns(t *Table) []*schema.Column {
	var (
		cols []*schema.Column
		seen = make(map[string]bool)
	)
	for _, row := range t.Rows {
		for _, c := range row.Cells {
			if !seen[c.Column.Name] {
				seen[c.Column.Name] = true
				cols = append(cols, c.Column)
			}
		}
	}
	return cols
}

func (l *Loader) renderInsert(t *Table, qualified string) string {
	var cols []*schema.Column
	for _, c := range columns(t) {
		if !c.IsUpdatedAudit {
			cols = append(cols, c)
		}
	}
	var b strings.Builder
	b.WriteString("INSERT INTO " + qualified + " (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(l.d.QuoteIdent(c.Name))
	}
	b.WriteString(") VALUES ")
	for i, row := range t.Rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, c := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(l.renderCell(row, c))
		}
		b.WriteString(")")
	}
	return b.String()
}

func (l *Loader) renderMerge(t *Table, qualified string) string {
	all := columns(t)
	m := &dialect.Merge{Table: qualified}
	for _, c := range all {
		m.Columns = append(m.Columns, l.d.QuoteIdent(c.Name))
	}
	for _, row := range t.Rows {
		vals := make([]string, 0, len(all))
		for _, c := range all {
			vals = append(vals, l.renderCell(row, c))
		}
		m.Rows = append(m.Rows, vals)
	}
	on := make(map[string]bool)
	for _, c := range all {
		switch {
		case c.IsCreatedAudit || c.IsUpdatedAudit:
		case t.GenerateID && c.IsPrimaryKey:
		default:
			on[c.Name] = true
			m.On = append(m.On, l.d.QuoteIdent(c.Name))
		}
	}
	for _, c := range all {
		if !c.IsUpdatedAudit {
			m.Insert = append(m.Insert, l.d.QuoteIdent(c.Name))
		}
		if !c.IsCreatedAudit && !c.IsPrimaryKey && !on[c.Name] {
			m.Update = append(m.Update, l.d.QuoteIdent(c.Name))
		}
	}
	return l.d.MergeSQL(m)
}

func (l *Loader) renderCell(row *Row, c *schema.Column) string {
	cell, ok := row.Cell(c.Name)
	if !ok {
		return "NULL"
	}
	if cell.UseFKQuery {
		ft := cell.Column.ForeignTable
		if cell.Column.ForeignSchema != "" {
			ft = l.d.QuoteIdent(cell.Column.ForeignSchema) + "." + l.d.QuoteIdent(cell.Column.ForeignTable)
		} else {
			ft = l.d.QuoteIdent(ft)
		}
		return fmt.Sprintf("(SELECT %s FROM %s WHERE %s = %s)",
			l.d.QuoteIdent(cell.Column.ForeignColumn), ft,
			l.d.QuoteIdent(cell.Column.ForeignRefDataCodeColumn),
			l.d.FormatValue(dialect.Value{Kind: dialect.KindString, String: cell.FKCode}))
	}
	return l.d.FormatValue(cell.Value)
}

func (l *Loader) qualified(t *schema.Table) string {
	if t.Schema == "" {
		return l.d.QuoteIdent(t.Name)
	}
	return l.d.QuoteIdent(t.Schema) + "." + l.d.QuoteIdent(t.Name)
}
