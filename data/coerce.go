// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package data

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dbex.io/dbex/sql/dialect"
	"dbex.io/dbex/sql/schema"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var timeOnlyLayouts = []string{"15:04:05.999999999", "15:04:05", "15:04"}

// coerce converts a scalar node into the column's semantic type. The
// second result reports a ref-data code to be rendered as a foreign-key
// subquery at emission time.
func (l *Loader) coerce(t *Table, c *schema.Column, n *yaml.Node) (dialect.Value, bool, error) {
	if n.Tag == "!!null" {
		return dialect.Value{Kind: dialect.KindNull, Null: true}, false, nil
	}
	raw := n.Value
	quoted := n.Tag == "!!str"
	// Runtime parameter reference.
	if strings.HasPrefix(raw, "^(") && strings.HasSuffix(raw, ")") {
		res, err := l.evalRuntime(raw[2 : len(raw)-1])
		if err != nil {
			return dialect.Value{}, false, err
		}
		if tv, ok := res.(time.Time); ok {
			return timeValue(c, tv), false, nil
		}
		raw, quoted = fmt.Sprint(res), true
	}
	return l.coerceString(t, c, raw, quoted)
}

func (l *Loader) coerceString(t *Table, c *schema.Column, raw string, quoted bool) (dialect.Value, bool, error) {
	fail := func(err error) (dialect.Value, bool, error) {
		return dialect.Value{}, false, &CoercionError{Table: t.Table.QualifiedName(), Column: c.Name, Value: raw, Err: err}
	}
	switch c.DataType {
	case schema.TypeInt, schema.TypeLong:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// Ref-data links accept the referenced code in place of the key.
			if c.IsForeignRefData {
				return dialect.Value{Kind: dialect.KindString, String: raw}, true, nil
			}
			return fail(err)
		}
		return dialect.Value{Kind: dialect.KindInt, Int: i}, false, nil
	case schema.TypeDecimal:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fail(err)
		}
		return dialect.Value{Kind: dialect.KindFloat, Float: f}, false, nil
	case schema.TypeBool:
		switch strings.ToLower(raw) {
		case "true", "yes", "y", "1":
			return dialect.Value{Kind: dialect.KindBool, Bool: true}, false, nil
		case "false", "no", "n", "0":
			return dialect.Value{Kind: dialect.KindBool, Bool: false}, false, nil
		}
		return fail(errors.New("not a boolean"))
	case schema.TypeDateTime, schema.TypeDateOnly:
		for _, layout := range dateTimeLayouts {
			if tv, err := time.Parse(layout, raw); err == nil {
				return timeValue(c, tv), false, nil
			}
		}
		return fail(errors.New("not a date/time"))
	case schema.TypeTimeOnly:
		for _, layout := range timeOnlyLayouts {
			if tv, err := time.Parse(layout, raw); err == nil {
				return timeValue(c, tv), false, nil
			}
		}
		return fail(errors.New("not a time"))
	case schema.TypeGUID:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil && !quoted {
			return dialect.Value{Kind: dialect.KindString, String: guidFromInt(i)}, false, nil
		}
		if l.cfg.ReplaceShorthandGuids && shorthandGuid(raw) {
			i, _ := strconv.ParseInt(raw[1:], 10, 64)
			return dialect.Value{Kind: dialect.KindString, String: guidFromInt(i)}, false, nil
		}
		u, err := uuid.Parse(raw)
		if err != nil {
			return fail(err)
		}
		return dialect.Value{Kind: dialect.KindString, String: u.String()}, false, nil
	case schema.TypeBinary:
		if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
			b, err := hex.DecodeString(raw[2:])
			if err != nil {
				return fail(err)
			}
			return dialect.Value{Kind: dialect.KindBytes, Bytes: b}, false, nil
		}
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return fail(err)
		}
		return dialect.Value{Kind: dialect.KindBytes, Bytes: b}, false, nil
	default:
		info := l.d.DataType(c.Type)
		return dialect.Value{Kind: dialect.KindString, String: raw, Unicode: info.IsUnicodeText}, false, nil
	}
}

func timeValue(c *schema.Column, t time.Time) dialect.Value {
	switch c.DataType {
	case schema.TypeDateOnly:
		return dialect.Value{Kind: dialect.KindDateOnly, Time: t}
	case schema.TypeTimeOnly:
		return dialect.Value{Kind: dialect.KindTimeOnly, Time: t}
	default:
		return dialect.Value{Kind: dialect.KindDateTime, Time: t}
	}
}

// guidFromInt places the integer in the most-significant 32 bits of an
// otherwise zero Guid, matching the shorthand "^N" form.
func guidFromInt(n int64) string {
	return fmt.Sprintf("%08x-0000-0000-0000-000000000000", uint32(n))
}

func shorthandGuid(s string) bool {
	if len(s) < 2 || s[0] != '^' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
