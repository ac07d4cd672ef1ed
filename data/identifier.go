// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package data

import (
	"dbex.io/dbex/sql/dialect"
	"dbex.io/dbex/sql/schema"

	"github.com/google/uuid"
)

// Generators supplies primary-key values for "^"-prefixed tables. Nil
// fields select the defaults: Guid v4 for Guid and string keys, and a
// monotonically increasing counter for integer keys.
type Generators struct {
	GUID   func() string
	String func() string
	Int    func() int64
	Long   func() int64
}

// generatorState holds the per-load counters backing the default
// integer generators.
type generatorState struct {
	nextInt  int64
	nextLong int64
}

func (l *Loader) generate(c *schema.Column) dialect.Value {
	g := l.cfg.Generators
	switch c.DataType {
	case schema.TypeInt:
		if g.Int != nil {
			return dialect.Value{Kind: dialect.KindInt, Int: g.Int()}
		}
		l.gen.nextInt++
		return dialect.Value{Kind: dialect.KindInt, Int: l.gen.nextInt}
	case schema.TypeLong:
		if g.Long != nil {
			return dialect.Value{Kind: dialect.KindInt, Int: g.Long()}
		}
		l.gen.nextLong++
		return dialect.Value{Kind: dialect.KindInt, Int: l.gen.nextLong}
	case schema.TypeString:
		if g.String != nil {
			return dialect.Value{Kind: dialect.KindString, String: g.String()}
		}
		return dialect.Value{Kind: dialect.KindString, String: uuid.NewString()}
	default:
		if g.GUID != nil {
			return dialect.Value{Kind: dialect.KindString, String: g.GUID()}
		}
		return dialect.Value{Kind: dialect.KindString, String: uuid.NewString()}
	}
}
