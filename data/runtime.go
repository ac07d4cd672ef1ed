// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package data

// evalRuntime resolves a ^(name) reference: the built-in UserName and
// DateTimeNow, then the session's parameter map, then the registered
// extension functions. Free-form dotted member paths are not supported;
// embedders needing computed values register a RuntimeFunc instead.
func (l *Loader) evalRuntime(expr string) (any, error) {
	switch expr {
	case "UserName":
		return l.cfg.UserName, nil
	case "DateTimeNow":
		return l.cfg.Now, nil
	}
	if v, ok := l.cfg.RuntimeParams[expr]; ok {
		return v, nil
	}
	if f, ok := l.cfg.RuntimeFuncs[expr]; ok {
		return f()
	}
	return nil, &ParameterUnresolvedError{Expr: expr}
}
