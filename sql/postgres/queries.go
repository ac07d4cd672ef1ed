// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package postgres

// Introspection queries, scoped to the connected database and excluding
// the catalog schemas. The projection matches the contract documented in
// sql/inspect.

func (*postgres) ColumnsQuery() string { return columnsQuery }

func (*postgres) KeysQuery() string { return keysQuery }

func (*postgres) ForeignKeysQuery() string { return fksQuery }

const (
	columnsQuery = `
SELECT
	c.table_schema,
	c.table_name,
	CASE WHEN t.table_type = 'VIEW' THEN 1 ELSE 0 END AS is_view,
	c.column_name,
	c.ordinal_position,
	LOWER(c.udt_name) AS type_name,
	c.character_maximum_length,
	c.numeric_precision,
	c.numeric_scale,
	CASE WHEN c.is_nullable = 'YES' THEN 1 ELSE 0 END AS is_nullable,
	c.column_default,
	CASE WHEN c.is_identity = 'YES' OR c.column_default LIKE 'nextval(%' THEN 1 ELSE 0 END AS is_identity,
	CASE WHEN c.is_generated = 'ALWAYS' THEN 1 ELSE 0 END AS is_computed,
	0 AS is_hidden
FROM
	information_schema.columns c
	INNER JOIN information_schema.tables t
	ON t.table_schema = c.table_schema
	AND t.table_name = c.table_name
WHERE
	c.table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY
	c.table_schema, c.table_name, c.ordinal_position`

	keysQuery = `
SELECT
	kcu.table_schema,
	kcu.table_name,
	kcu.column_name,
	tc.constraint_type,
	(
		SELECT COUNT(*)
		FROM information_schema.key_column_usage k2
		WHERE k2.constraint_schema = kcu.constraint_schema
		AND k2.constraint_name = kcu.constraint_name
	) AS column_count
FROM
	information_schema.key_column_usage kcu
	INNER JOIN information_schema.table_constraints tc
	ON tc.constraint_schema = kcu.constraint_schema
	AND tc.constraint_name = kcu.constraint_name
WHERE
	tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
	AND kcu.table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY
	kcu.table_schema, kcu.table_name, kcu.ordinal_position`

	fksQuery = `
SELECT
	kcu.table_schema,
	kcu.table_name,
	kcu.column_name,
	ccu.table_schema AS ref_schema,
	ccu.table_name AS ref_table,
	ccu.column_name AS ref_column,
	(
		SELECT COUNT(*)
		FROM information_schema.key_column_usage k2
		WHERE k2.constraint_schema = kcu.constraint_schema
		AND k2.constraint_name = kcu.constraint_name
	) AS column_count
FROM
	information_schema.table_constraints tc
	INNER JOIN information_schema.key_column_usage kcu
	ON kcu.constraint_schema = tc.constraint_schema
	AND kcu.constraint_name = tc.constraint_name
	INNER JOIN information_schema.constraint_column_usage ccu
	ON ccu.constraint_schema = tc.constraint_schema
	AND ccu.constraint_name = tc.constraint_name
WHERE
	tc.constraint_type = 'FOREIGN KEY'
	AND kcu.table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY
	kcu.table_schema, kcu.table_name, kcu.ordinal_position`
)
