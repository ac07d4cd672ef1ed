// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mysql

// Introspection queries, scoped to the connected database. The projection
// matches the contract documented in sql/inspect. MySQL reports the
// database name in TABLE_SCHEMA; the model's schema part stays empty, so
// the first projected column is a constant.

func (*mysql) ColumnsQuery() string { return columnsQuery }

func (*mysql) KeysQuery() string { return keysQuery }

func (*mysql) ForeignKeysQuery() string { return fksQuery }

const (
	columnsQuery = `
SELECT
	'' AS table_schema,
	c.TABLE_NAME,
	IF(t.TABLE_TYPE = 'VIEW', 1, 0) AS is_view,
	c.COLUMN_NAME,
	c.ORDINAL_POSITION,
	LOWER(c.DATA_TYPE) AS type_name,
	c.CHARACTER_MAXIMUM_LENGTH,
	c.NUMERIC_PRECISION,
	c.NUMERIC_SCALE,
	IF(c.IS_NULLABLE = 'YES', 1, 0) AS is_nullable,
	c.COLUMN_DEFAULT,
	IF(c.EXTRA LIKE '%auto_increment%', 1, 0) AS is_identity,
	IF(c.GENERATION_EXPRESSION IS NOT NULL AND c.GENERATION_EXPRESSION <> '', 1, 0) AS is_computed,
	0 AS is_hidden
FROM
	information_schema.COLUMNS c
	INNER JOIN information_schema.TABLES t
	ON t.TABLE_SCHEMA = c.TABLE_SCHEMA
	AND t.TABLE_NAME = c.TABLE_NAME
WHERE
	c.TABLE_SCHEMA = DATABASE()
ORDER BY
	c.TABLE_NAME, c.ORDINAL_POSITION`

	keysQuery = `
SELECT
	'' AS table_schema,
	kcu.TABLE_NAME,
	kcu.COLUMN_NAME,
	tc.CONSTRAINT_TYPE,
	(
		SELECT COUNT(*)
		FROM information_schema.KEY_COLUMN_USAGE k2
		WHERE k2.TABLE_SCHEMA = kcu.TABLE_SCHEMA
		AND k2.TABLE_NAME = kcu.TABLE_NAME
		AND k2.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
	) AS column_count
FROM
	information_schema.KEY_COLUMN_USAGE kcu
	INNER JOIN information_schema.TABLE_CONSTRAINTS tc
	ON tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
	AND tc.TABLE_NAME = kcu.TABLE_NAME
	AND tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
WHERE
	kcu.TABLE_SCHEMA = DATABASE()
	AND tc.CONSTRAINT_TYPE IN ('PRIMARY KEY', 'UNIQUE')
ORDER BY
	kcu.TABLE_NAME, kcu.ORDINAL_POSITION`

	fksQuery = `
SELECT
	'' AS table_schema,
	kcu.TABLE_NAME,
	kcu.COLUMN_NAME,
	'' AS ref_schema,
	kcu.REFERENCED_TABLE_NAME,
	kcu.REFERENCED_COLUMN_NAME,
	(
		SELECT COUNT(*)
		FROM information_schema.KEY_COLUMN_USAGE k2
		WHERE k2.TABLE_SCHEMA = kcu.TABLE_SCHEMA
		AND k2.TABLE_NAME = kcu.TABLE_NAME
		AND k2.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
	) AS column_count
FROM
	information_schema.KEY_COLUMN_USAGE kcu
WHERE
	kcu.TABLE_SCHEMA = DATABASE()
	AND kcu.REFERENCED_TABLE_NAME IS NOT NULL
ORDER BY
	kcu.TABLE_NAME, kcu.ORDINAL_POSITION`
)
