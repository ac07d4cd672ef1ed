// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package reconcile plans the drop/create reconciliation of idempotent
// schema objects (types, functions, views, procedures). Each script's
// CREATE head is parsed to identify the object; the plan drops every
// object in reverse precedence order and re-creates them forward, so a
// Schema run is total regardless of the catalog's prior state.
package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"dbex.io/dbex/sql/dialect"
	"dbex.io/dbex/sql/sqlparse"
)

// A Script is a named schema-object script body.
type Script struct {
	Name string
	Body string
}

// NotACreateStatementError reports a schema script whose first statement
// is not a supported CREATE head.
type NotACreateStatementError struct {
	Script string
}

func (e *NotACreateStatementError) Error() string {
	return fmt.Sprintf("reconcile: script %q does not begin with a CREATE statement", e.Script)
}

// UnsupportedObjectTypeError reports a CREATE of an object type outside
// the dialect's supported list.
type UnsupportedObjectTypeError struct {
	Script string
	Type   string
}

func (e *UnsupportedObjectTypeError) Error() string {
	return fmt.Sprintf("reconcile: script %q creates unsupported object type %q", e.Script, e.Type)
}

// An Object is a schema object identified from a script's CREATE head.
type Object struct {
	Type   string // normalized object type (e.g. "FUNCTION")
	Schema string // empty when the script omits the schema qualifier
	Name   string
	Script Script
}

// QualifiedName returns the dialect-quoted object name.
func (o *Object) QualifiedName(d dialect.Dialect) string {
	if o.Schema == "" {
		return d.QuoteIdent(o.Name)
	}
	return d.QuoteIdent(o.Schema) + "." + d.QuoteIdent(o.Name)
}

// A Plan is the ordered reconciliation: Drops run first (reverse
// precedence), then each object's script body in forward precedence.
type Plan struct {
	Drops   []string
	Creates []*Object
}

// New identifies every script's object and computes the total order:
// schema precedence (schemaOrder, with the dialect's default schema
// first), then the dialect's object-type precedence, then name.
func New(d dialect.Dialect, schemaOrder []string, scripts []Script) (*Plan, error) {
	objs := make([]*Object, 0, len(scripts))
	for _, s := range scripts {
		o, err := parseHead(d, s)
		if err != nil {
			return nil, err
		}
		objs = append(objs, o)
	}
	order := schemaRank(d, schemaOrder)
	types := typeRank(d)
	sort.SliceStable(objs, func(i, j int) bool {
		a, b := objs[i], objs[j]
		if ra, rb := order(a.Schema), order(b.Schema); ra != rb {
			return ra < rb
		}
		if ta, tb := types[a.Type], types[b.Type]; ta != tb {
			return ta < tb
		}
		return a.Name < b.Name
	})
	p := &Plan{Creates: objs}
	for i := len(objs) - 1; i >= 0; i-- {
		o := objs[i]
		p.Drops = append(p.Drops, fmt.Sprintf("DROP %s IF EXISTS %s", o.Type, o.QualifiedName(d)))
	}
	return p, nil
}

// parseHead scans the script for its first CREATE statement head:
// CREATE [OR ALTER | OR REPLACE] <type> [<schema>.]<name>.
func parseHead(d dialect.Dialect, s Script) (*Object, error) {
	sc := sqlparse.NewScanner(s.Body, d.Quoting())
	tok, err := sc.Next()
	for err == nil && tok.Kind == sqlparse.TokenPunct {
		tok, err = sc.Next()
	}
	if err != nil {
		return nil, err
	}
	if tok.Kind != sqlparse.TokenIdent || !strings.EqualFold(tok.Text, "CREATE") {
		return nil, &NotACreateStatementError{Script: s.Name}
	}
	if tok, err = sc.Next(); err != nil {
		return nil, err
	}
	if tok.Kind == sqlparse.TokenIdent && strings.EqualFold(tok.Text, "OR") {
		next, err := sc.Next()
		if err != nil {
			return nil, err
		}
		alter := next.Kind == sqlparse.TokenIdent &&
			(strings.EqualFold(next.Text, "ALTER") || strings.EqualFold(next.Text, "REPLACE"))
		if !alter || !d.SupportsCreateOrAlter() {
			return nil, &NotACreateStatementError{Script: s.Name}
		}
		if tok, err = sc.Next(); err != nil {
			return nil, err
		}
	}
	if tok.Kind != sqlparse.TokenIdent {
		return nil, &NotACreateStatementError{Script: s.Name}
	}
	typ := strings.ToUpper(tok.Text)
	if !supportedType(d, typ) {
		return nil, &UnsupportedObjectTypeError{Script: s.Name, Type: typ}
	}
	o := &Object{Type: typ, Script: s}
	if tok, err = sc.Next(); err != nil {
		return nil, err
	}
	if tok.Kind != sqlparse.TokenIdent && tok.Kind != sqlparse.TokenQuoted {
		return nil, &NotACreateStatementError{Script: s.Name}
	}
	o.Name = tok.Text
	dot, err := sc.Next()
	if err != nil {
		return nil, err
	}
	if dot.Kind == sqlparse.TokenPunct && dot.Text == "." {
		if tok, err = sc.Next(); err != nil {
			return nil, err
		}
		if tok.Kind != sqlparse.TokenIdent && tok.Kind != sqlparse.TokenQuoted {
			return nil, &NotACreateStatementError{Script: s.Name}
		}
		o.Schema, o.Name = o.Name, tok.Text
	}
	return o, nil
}

func supportedType(d dialect.Dialect, typ string) bool {
	for _, t := range d.CreateObjectTypes() {
		if t == typ {
			return true
		}
	}
	return false
}

// schemaRank ranks schemas by their position in schemaOrder; the default
// schema ranks first unless the caller placed it explicitly. Unlisted
// schemas rank after all listed ones, alphabetically via the name
// tiebreak in the caller's sort.
func schemaRank(d dialect.Dialect, schemaOrder []string) func(string) int {
	rank := make(map[string]int)
	pos := 0
	ds, hasDefault := d.DefaultSchema()
	if hasDefault {
		listed := false
		for _, s := range schemaOrder {
			if strings.EqualFold(s, ds) {
				listed = true
			}
		}
		if !listed {
			rank[strings.ToLower(ds)] = pos
			pos++
		}
	}
	for _, s := range schemaOrder {
		if _, ok := rank[strings.ToLower(s)]; !ok {
			rank[strings.ToLower(s)] = pos
			pos++
		}
	}
	return func(s string) int {
		if s == "" && hasDefault {
			s = ds // unqualified names resolve to the default schema
		}
		if r, ok := rank[strings.ToLower(s)]; ok {
			return r
		}
		return pos
	}
}

func typeRank(d dialect.Dialect) map[string]int {
	rank := make(map[string]int)
	for i, t := range d.CreateObjectTypes() {
		rank[t] = i
	}
	return rank
}
