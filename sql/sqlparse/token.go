// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlparse

import (
	"unicode"
	"unicode/utf8"
)

// TokenKind discriminates scanned tokens.
type TokenKind int

const (
	// TokenEOF marks the end of input.
	TokenEOF TokenKind = iota
	// TokenIdent is a bare word: keyword, identifier or number.
	TokenIdent
	// TokenQuoted is a quoted identifier; Text holds the unquoted name.
	TokenQuoted
	// TokenPunct is a single punctuation rune.
	TokenPunct
)

// Token is a lexical element of a statement head.
type Token struct {
	Kind   TokenKind
	Text   string
	Offset int
}

// A Scanner yields tokens from a SQL statement, skipping comments.
// It is used to read CREATE heads; it does not tokenize full statements.
type Scanner struct {
	l *lex
}

// NewScanner returns a Scanner over the given input.
func NewScanner(input string, q Quoting) *Scanner {
	return &Scanner{l: &lex{input: input, quoting: q}}
}

// Next returns the next token. After the input is exhausted it returns
// TokenEOF tokens forever.
func (s *Scanner) Next() (Token, error) {
	l := s.l
	for {
		l.skipSpaces()
		start := l.pos
		switch r := l.next(); {
		case r == eos:
			return Token{Kind: TokenEOF, Offset: start}, nil
		case r == '-':
			if l.next() == '-' {
				l.skipLineComment()
				continue
			}
			l.backup()
			return Token{Kind: TokenPunct, Text: "-", Offset: start}, nil
		case r == '/':
			if l.next() == '*' {
				if err := l.skipBlockComment(); err != nil {
					return Token{}, err
				}
				continue
			}
			l.backup()
			return Token{Kind: TokenPunct, Text: "/", Offset: start}, nil
		case isQuoteOpen(r, l.quoting):
			right := closeFor(r, l.quoting)
			if err := l.skipQuoted(r, right); err != nil {
				return Token{}, err
			}
			text := l.input[start+1 : l.pos-1]
			return Token{Kind: TokenQuoted, Text: unescapeQuoted(text, right), Offset: start}, nil
		case isWord(r):
			for {
				r := l.next()
				if r == eos {
					break
				}
				if !isWord(r) {
					l.backup()
					break
				}
			}
			return Token{Kind: TokenIdent, Text: l.input[start:l.pos], Offset: start}, nil
		default:
			return Token{Kind: TokenPunct, Text: string(r), Offset: start}, nil
		}
	}
}

func isWord(r rune) bool {
	return r == '_' || r == '#' || r == '@' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isQuoteOpen(r rune, q Quoting) bool {
	for _, p := range q.Pairs {
		if r == p[0] {
			return true
		}
	}
	return false
}

func closeFor(r rune, q Quoting) rune {
	for _, p := range q.Pairs {
		if r == p[0] {
			return p[1]
		}
	}
	return r
}

// unescapeQuoted collapses doubled closing characters inside a quoted
// identifier, e.g. `a]]b` scanned from [a]]b] becomes `a]b`.
func unescapeQuoted(s string, right rune) string {
	doubled := string(right) + string(right)
	out := make([]rune, 0, len(s))
	for i := 0; i < len(s); {
		if len(s)-i >= len(doubled) && s[i:i+len(doubled)] == doubled {
			out = append(out, right)
			i += len(doubled)
			continue
		}
		r, w := utf8.DecodeRuneInString(s[i:])
		out = append(out, r)
		i += w
	}
	return string(out)
}
