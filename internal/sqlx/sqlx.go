// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package sqlx holds small helpers shared by the dialect drivers, the
// migration orchestrator and the data-emission layer.
package sqlx

import (
	"database/sql"
	"fmt"
	"strings"
)

// ScanOne scans exactly one row into the given destinations and closes
// the rows.
func ScanOne(rows *sql.Rows, dest ...any) error {
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	if err := rows.Scan(dest...); err != nil {
		return err
	}
	return rows.Close()
}

// SingleQuote quotes the given string as a SQL string literal,
// doubling embedded quotes.
func SingleQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// A Builder provides a syntactic sugar API for writing SQL statements.
type Builder struct {
	strings.Builder
	// QuoteOpen and QuoteClose are the identifier-quoting
	// characters, e.g. '[' and ']' in SQL Server.
	QuoteOpen, QuoteClose byte
}

// NewBuilder returns a Builder using the given quote pair.
func NewBuilder(open, right byte) *Builder {
	return &Builder{QuoteOpen: open, QuoteClose: right}
}

// P writes the given phrases to the builder, space separated.
func (b *Builder) P(phrases ...string) *Builder {
	for _, p := range phrases {
		if p == "" {
			continue
		}
		if b.Len() > 0 && b.lastByte() != ' ' && b.lastByte() != '(' {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return b
}

// Ident writes the given identifier quoted.
func (b *Builder) Ident(name string) *Builder {
	return b.P(b.Quote(name))
}

// Table writes a qualified, quoted table identifier.
func (b *Builder) Table(schema, name string) *Builder {
	switch {
	case schema != "":
		b.P(b.Quote(schema) + "." + b.Quote(name))
	default:
		b.Ident(name)
	}
	return b
}

// Quote returns the quoted form of the given identifier.
func (b *Builder) Quote(name string) string {
	q := string(b.QuoteClose)
	return string(b.QuoteOpen) + strings.ReplaceAll(name, q, q+q) + string(b.QuoteClose)
}

// Comma writes a comma.
func (b *Builder) Comma() *Builder {
	b.WriteString(", ")
	return b
}

// MapComma maps the slice with the given function, comma separated.
func (b *Builder) MapComma(n int, f func(i int, b *Builder)) *Builder {
	for i := 0; i < n; i++ {
		if i > 0 {
			b.Comma()
		}
		f(i, b)
	}
	return b
}

// Wrap wraps the output of f in parentheses.
func (b *Builder) Wrap(f func(b *Builder)) *Builder {
	if b.Len() > 0 && b.lastByte() != ' ' {
		b.WriteByte(' ')
	}
	b.WriteByte('(')
	f(b)
	b.WriteByte(')')
	return b
}

func (b *Builder) lastByte() byte {
	s := b.String()
	return s[len(s)-1]
}

// SortTopological orders the given node names so that every node appears
// after all nodes it depends on (Kahn's algorithm). Ties resolve in the
// order nodes were passed, keeping emission deterministic. An error is
// returned when the dependency graph contains a cycle.
func SortTopological(nodes []string, deps map[string][]string) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		indegree[n] = 0
		index[n] = i
	}
	for n, ds := range deps {
		if _, ok := indegree[n]; !ok {
			continue
		}
		for _, d := range ds {
			if d == n {
				continue // self-references do not order emission
			}
			if _, ok := indegree[d]; ok {
				indegree[n]++
			}
		}
	}
	var (
		sorted []string
		ready  []string
	)
	for _, n := range nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	seen := make(map[string]bool, len(nodes))
	for len(ready) > 0 {
		// Lowest input position first.
		min := 0
		for i := range ready {
			if index[ready[i]] < index[ready[min]] {
				min = i
			}
		}
		n := ready[min]
		ready = append(ready[:min], ready[min+1:]...)
		sorted = append(sorted, n)
		seen[n] = true
		// Release nodes depending on n.
		for _, m := range nodes {
			if seen[m] {
				continue
			}
			for _, d := range deps[m] {
				if d == n {
					indegree[m]--
					if indegree[m] == 0 {
						ready = append(ready, m)
					}
				}
			}
		}
	}
	if len(sorted) != len(nodes) {
		var stuck []string
		for _, n := range nodes {
			if !seen[n] {
				stuck = append(stuck, n)
			}
		}
		return nil, fmt.Errorf("dependency cycle involving %s", strings.Join(stuck, ", "))
	}
	return sorted, nil
}
