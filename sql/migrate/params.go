// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

import "strings"

// Well-known parameter names. DatabaseName, UserName and DateTimeNow are
// seeded by the session; JournalSchema and JournalTable override the
// dialect's default journal identifier.
const (
	ParamDatabaseName  = "DatabaseName"
	ParamJournalSchema = "JournalSchema"
	ParamJournalTable  = "JournalTable"
	ParamUserName      = "UserName"
	ParamDateTimeNow   = "DateTimeNow"
)

// Parameters is the session's runtime parameter map. Values are
// substituted into script bodies via {{name}} placeholders.
type Parameters map[string]string

// Expand replaces every {{name}} placeholder with the parameter's value.
// Placeholders with no matching parameter are preserved verbatim.
func (p Parameters) Expand(body string) string {
	if len(p) == 0 || !strings.Contains(body, "{{") {
		return body
	}
	pairs := make([]string, 0, 2*len(p))
	for k, v := range p {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

// setDefault sets name to value unless the caller supplied it already.
func (p Parameters) setDefault(name, value string) {
	if _, ok := p[name]; !ok {
		p[name] = value
	}
}
