// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package data

import (
	"fmt"

	"dbex.io/dbex/sql/schema"

	"gopkg.in/yaml.v3"
)

// Parse loads one data file. YAML and JSON are both accepted; row-object
// key order is preserved. Parse may be called repeatedly to accumulate
// multiple files into the same load.
func (l *Loader) Parse(name string, content []byte) error {
	var root yaml.Node
	if err := yaml.Unmarshal(content, &root); err != nil {
		return &InvalidStructureError{Context: name, Reason: err.Error()}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 || root.Content[0].Kind != yaml.MappingNode {
		return &InvalidStructureError{Context: name, Reason: "expected a mapping of schema name to tables"}
	}
	doc := root.Content[0]
	fc := &fileConfig{}
	// The "*" schema may appear anywhere; resolve it before the tables.
	for i := 0; i < len(doc.Content); i += 2 {
		if doc.Content[i].Value == "*" {
			if err := parseFileConfig(name, doc.Content[i+1], fc); err != nil {
				return err
			}
		}
	}
	for i := 0; i < len(doc.Content); i += 2 {
		schemaName, tables := doc.Content[i].Value, doc.Content[i+1]
		if schemaName == "*" {
			continue
		}
		if tables.Kind != yaml.SequenceNode {
			return &InvalidStructureError{Context: fmt.Sprintf("%s: schema %q", name, schemaName), Reason: "expected a sequence of tables"}
		}
		for _, entry := range tables.Content {
			if entry.Kind != yaml.MappingNode || len(entry.Content) != 2 {
				return &InvalidStructureError{Context: fmt.Sprintf("%s: schema %q", name, schemaName), Reason: "expected a single-key table entry"}
			}
			if _, err := l.parseTable(fc, schemaName, entry.Content[0].Value, entry.Content[1], nil, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseFileConfig(file string, n *yaml.Node, fc *fileConfig) error {
	// Accept the config mapping directly or as a single-element sequence.
	if n.Kind == yaml.SequenceNode && len(n.Content) == 1 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return &InvalidStructureError{Context: file + `: schema "*"`, Reason: "expected a configuration mapping"}
	}
	for i := 0; i < len(n.Content); i += 2 {
		key, val := n.Content[i].Value, n.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return &InvalidStructureError{Context: file + `: schema "*"`, Reason: fmt.Sprintf("%s must be a scalar", key)}
		}
		switch key {
		case "preConditionSql":
			fc.preConditionSQL = val.Value
		case "preSql":
			fc.preSQL = val.Value
		case "postSql":
			fc.postSQL = val.Value
		default:
			return &InvalidStructureError{Context: file + `: schema "*"`, Reason: fmt.Sprintf("unknown configuration key %q", key)}
		}
	}
	return nil
}

// parseTable resolves a (schema, key) table entry and its rows. The key
// may carry the "$" (merge) and "^" (generate identifier) prefixes.
// Child invocations pass the parent table and row for the deferred
// primary-key cascade.
func (l *Loader) parseTable(fc *fileConfig, schemaName, key string, rows *yaml.Node, parent *Table, parentRow *Row) (*Table, error) {
	t := &Table{config: fc}
	name := key
	for len(name) > 0 && (name[0] == '$' || name[0] == '^') {
		if name[0] == '$' {
			t.IsMerge = true
		} else {
			t.GenerateID = true
		}
		name = name[1:]
	}
	physSchema, physName, columnMap := l.mapTable(schemaName, name)
	pt, ok := l.model.Table(physSchema, physName)
	if !ok {
		return nil, &TableNotFoundError{Schema: physSchema, Table: physName}
	}
	t.Table = pt
	l.tables = append(l.tables, t)
	if rows.Kind != yaml.SequenceNode {
		return nil, &InvalidStructureError{Context: pt.QualifiedName(), Reason: "expected a sequence of rows"}
	}
	for _, rn := range rows.Content {
		row, err := l.parseRow(fc, t, columnMap, rn)
		if err != nil {
			return nil, err
		}
		t.Rows = append(t.Rows, row)
		if parent != nil {
			l.cascades = append(l.cascades, cascade{parent: parent.Table, parentRow: parentRow, child: t, childRow: row})
		}
	}
	return t, nil
}

func (l *Loader) parseRow(fc *fileConfig, t *Table, columnMap map[string]string, rn *yaml.Node) (*Row, error) {
	if rn.Kind != yaml.MappingNode {
		return nil, &InvalidStructureError{Context: t.Table.QualifiedName(), Reason: "expected a row mapping"}
	}
	row := &Row{}
	// Ref-data shorthand: a single scalar pair whose key is not a column
	// is (code, text).
	if t.Table.IsRefData && len(rn.Content) == 2 && rn.Content[1].Kind == yaml.ScalarNode {
		if _, ok := l.resolveColumn(t.Table, columnMap, rn.Content[0].Value); !ok {
			code := t.Table.RefDataCodeColumn
			var text *schema.Column
			for _, c := range t.Table.Columns {
				if c.IsRefDataText {
					text = c
				}
			}
			cv, _, err := l.coerce(t, code, rn.Content[0])
			if err != nil {
				return nil, err
			}
			tv, _, err := l.coerce(t, text, rn.Content[1])
			if err != nil {
				return nil, err
			}
			row.Cells = append(row.Cells, &Cell{Column: code, Value: cv}, &Cell{Column: text, Value: tv})
			return row, nil
		}
	}
	for i := 0; i < len(rn.Content); i += 2 {
		key, val := rn.Content[i].Value, rn.Content[i+1]
		switch val.Kind {
		case yaml.SequenceNode:
			// Child table; parent PK values cascade by convention.
			if _, err := l.parseTable(fc, t.Table.Schema, key, val, t, row); err != nil {
				return nil, err
			}
			continue
		case yaml.MappingNode:
			return nil, &InvalidStructureError{Context: t.Table.QualifiedName(), Reason: fmt.Sprintf("nested object under %q", key)}
		}
		c, ok := l.resolveColumn(t.Table, columnMap, key)
		if !ok {
			return nil, &InvalidStructureError{Context: t.Table.QualifiedName(), Reason: fmt.Sprintf("unknown column %q", key)}
		}
		if _, dup := row.Cell(c.Name); dup {
			return nil, &DuplicateColumnError{Table: t.Table.QualifiedName(), Column: c.Name}
		}
		v, fk, err := l.coerce(t, c, val)
		if err != nil {
			return nil, err
		}
		cell := &Cell{Column: c, Value: v}
		if fk {
			cell.UseFKQuery, cell.FKCode = true, v.String
		}
		row.Cells = append(row.Cells, cell)
	}
	return row, nil
}

// resolveColumn matches a row key to a column: the mapped name, the name
// itself, or "<name><IDSuffix>" when that column is a foreign-ref-data
// link.
func (l *Loader) resolveColumn(t *schema.Table, columnMap map[string]string, key string) (*schema.Column, bool) {
	if mapped, ok := columnMap[key]; ok {
		key = mapped
	}
	if c, ok := t.Column(key); ok {
		return c, true
	}
	suffix := l.cfg.IDSuffix
	if suffix == "" {
		suffix = "Id"
	}
	if c, ok := t.Column(key + suffix); ok && c.IsForeignRefData {
		return c, true
	}
	return nil, false
}
