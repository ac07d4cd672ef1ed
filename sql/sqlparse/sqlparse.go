// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Package sqlparse provides the low-level scanning primitives shared by the
// migration executor and the schema-object reconciler: splitting a raw script
// into executable statements, and tokenizing statement heads.
//
// The scanner is not a SQL parser. It understands just enough of the lexical
// structure (string literals, quoted identifiers, line and block comments,
// batch delimiters) to find statement boundaries without being fooled by
// delimiter characters inside literals or comments.
package sqlparse

import (
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Delimiter determines how a script is split into executable statements.
type Delimiter int

const (
	// DelimiterSemicolon splits on top-level semicolons (MySQL, PostgreSQL).
	DelimiterSemicolon Delimiter = iota
	// DelimiterGo splits on lines whose trimmed content equals "GO",
	// case-insensitive (SQL Server batch separator).
	DelimiterGo
)

// Quoting configures the identifier-quoting characters honored by the scanner.
type Quoting struct {
	// Pairs of opening/closing identifier quotes, e.g. {'[', ']'} for
	// SQL Server, {'`', '`'} for MySQL, {'"', '"'} for the standard form.
	Pairs [][2]rune
}

// DefaultQuoting recognizes all quoting forms accepted by the supported
// engines. Splitting is conservative: treating a foreign quoting form as a
// quote never changes statement boundaries in well-formed scripts.
var DefaultQuoting = Quoting{Pairs: [][2]rune{{'[', ']'}, {'`', '`'}, {'"', '"'}}}

// A SyntaxError reports an unterminated construct in a script.
type SyntaxError struct {
	Offset int    // byte offset of the construct start
	Reason string // e.g. "unterminated string literal"
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("sqlparse: %s at offset %d", e.Reason, e.Offset)
}

// Split breaks the given script into executable statements according to the
// delimiter mode. Empty statements (whitespace or comments only) are dropped.
// Statement text excludes the delimiter itself.
func Split(input string, d Delimiter, q Quoting) ([]string, error) {
	if d == DelimiterGo {
		return splitGo(input, q)
	}
	var (
		stmts []string
		l     = &lex{input: input, quoting: q}
	)
	for {
		s, err := l.stmt()
		if err == io.EOF {
			return stmts, nil
		}
		if err != nil {
			return nil, err
		}
		if s != "" && !trivia(s, q) {
			stmts = append(stmts, s)
		}
	}
}

// trivia reports whether s consists solely of whitespace and comments.
func trivia(s string, q Quoting) bool {
	l := &lex{input: s, quoting: q}
	for {
		l.skipSpaces()
		switch r := l.next(); {
		case r == eos:
			return true
		case r == '-':
			if l.next() != '-' {
				return false
			}
			l.skipLineComment()
		case r == '/':
			if l.next() != '*' {
				return false
			}
			if l.skipBlockComment() != nil {
				return false
			}
		default:
			return false
		}
	}
}

// splitGo splits on batch-separator lines. A separator is a line whose
// content, after trimming whitespace, equals "GO" case-insensitively and is
// not inside a string literal or comment.
func splitGo(input string, q Quoting) ([]string, error) {
	var (
		stmts []string
		b     strings.Builder
		l     = &lex{input: input, quoting: q}
	)
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" && !trivia(s, q) {
			stmts = append(stmts, s)
		}
		b.Reset()
	}
	for {
		line, atEOF, err := l.line()
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(strings.TrimSpace(line), "GO") {
			flush()
		} else {
			b.WriteString(line)
		}
		if atEOF {
			flush()
			return stmts, nil
		}
	}
}

// lex scans the input rune by rune, tracking quoting and comment state.
// Modeled as a cursor over an immutable string; pos is a byte offset.
type lex struct {
	input   string
	pos     int
	width   int
	quoting Quoting
}

const eos = -1

func (l *lex) next() rune {
	if l.pos >= len(l.input) {
		l.width = 0
		return eos
	}
	r, w := utf8.DecodeRuneInString(l.input[l.pos:])
	l.width = w
	l.pos += w
	return r
}

func (l *lex) backup() { l.pos -= l.width }

// stmt scans a single semicolon-terminated statement.
func (l *lex) stmt() (string, error) {
	l.skipSpaces()
	start := l.pos
	for {
		r := l.next()
		switch {
		case r == eos:
			if s := strings.TrimSpace(l.input[start:l.pos]); s != "" {
				return s, nil
			}
			return "", io.EOF
		case r == ';':
			return strings.TrimSpace(l.input[start : l.pos-1]), nil
		default:
			if err := l.structure(r); err != nil {
				return "", err
			}
		}
	}
}

// line scans a single line, honoring literals and comments that span lines.
// The returned text includes the trailing newline, if any.
func (l *lex) line() (string, bool, error) {
	start := l.pos
	for {
		r := l.next()
		switch {
		case r == eos:
			return l.input[start:l.pos], true, nil
		case r == '\n':
			return l.input[start:l.pos], false, nil
		default:
			if err := l.structure(r); err != nil {
				return "", false, err
			}
		}
	}
}

// structure consumes any multi-character lexical construct opened by r:
// string literals, quoted identifiers, line comments, block comments.
func (l *lex) structure(r rune) error {
	switch {
	case r == '\'':
		return l.skipString()
	case r == '-':
		if l.next() == '-' {
			l.skipLineComment()
		} else {
			l.backup()
		}
	case r == '/':
		if l.next() == '*' {
			return l.skipBlockComment()
		}
		l.backup()
	default:
		for _, p := range l.quoting.Pairs {
			if r == p[0] {
				return l.skipQuoted(p[0], p[1])
			}
		}
	}
	return nil
}

// skipString consumes a single-quoted literal. Doubling '' escapes a quote.
func (l *lex) skipString() error {
	start := l.pos - 1
	for {
		switch l.next() {
		case eos:
			return &SyntaxError{Offset: start, Reason: "unterminated string literal"}
		case '\'':
			if l.next() != '\'' {
				l.backup()
				return nil
			}
		}
	}
}

// skipQuoted consumes a quoted identifier. Doubling the closing character
// escapes it (e.g. [a]]b], "a""b").
func (l *lex) skipQuoted(open, right rune) error {
	start := l.pos - 1
	for {
		switch r := l.next(); r {
		case eos:
			return &SyntaxError{Offset: start, Reason: fmt.Sprintf("unterminated quoted identifier %q", open)}
		case right:
			if l.next() != right {
				l.backup()
				return nil
			}
		}
	}
}

func (l *lex) skipLineComment() {
	for {
		switch l.next() {
		case eos:
			return
		case '\n':
			l.backup()
			return
		}
	}
}

func (l *lex) skipBlockComment() error {
	start := l.pos - 2
	for {
		switch l.next() {
		case eos:
			return &SyntaxError{Offset: start, Reason: "unterminated block comment"}
		case '*':
			if l.next() == '/' {
				return nil
			}
			l.backup()
		}
	}
}

func (l *lex) skipSpaces() {
	for {
		r := l.next()
		if r == eos {
			return
		}
		if !unicode.IsSpace(r) {
			l.backup()
			return
		}
	}
}
