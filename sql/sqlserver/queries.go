// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package sqlserver

// Introspection queries. Each produces the fixed projection documented in
// sql/inspect and is scoped to the connected database.

func (*sqlserver) ColumnsQuery() string { return columnsQuery }

func (*sqlserver) KeysQuery() string { return keysQuery }

func (*sqlserver) ForeignKeysQuery() string { return fksQuery }

const (
	columnsQuery = `
SELECT
	[c].[TABLE_SCHEMA],
	[c].[TABLE_NAME],
	CASE WHEN [v].[TABLE_NAME] IS NULL THEN 0 ELSE 1 END AS [is_view],
	[c].[COLUMN_NAME],
	[c].[ORDINAL_POSITION],
	LOWER([c].[DATA_TYPE]) AS [type_name],
	[c].[CHARACTER_MAXIMUM_LENGTH],
	[c].[NUMERIC_PRECISION],
	[c].[NUMERIC_SCALE],
	CASE WHEN [c].[IS_NULLABLE] = 'YES' THEN 1 ELSE 0 END AS [is_nullable],
	[c].[COLUMN_DEFAULT],
	ISNULL(COLUMNPROPERTY(OBJECT_ID([c].[TABLE_SCHEMA] + '.' + [c].[TABLE_NAME]), [c].[COLUMN_NAME], 'IsIdentity'), 0) AS [is_identity],
	ISNULL(COLUMNPROPERTY(OBJECT_ID([c].[TABLE_SCHEMA] + '.' + [c].[TABLE_NAME]), [c].[COLUMN_NAME], 'IsComputed'), 0) AS [is_computed],
	CASE WHEN LOWER([c].[DATA_TYPE]) IN ('rowversion', 'timestamp') THEN 1 ELSE 0 END AS [is_hidden]
FROM
	[INFORMATION_SCHEMA].[COLUMNS] [c]
	LEFT JOIN [INFORMATION_SCHEMA].[VIEWS] [v]
	ON [v].[TABLE_SCHEMA] = [c].[TABLE_SCHEMA]
	AND [v].[TABLE_NAME] = [c].[TABLE_NAME]
ORDER BY
	[c].[TABLE_SCHEMA], [c].[TABLE_NAME], [c].[ORDINAL_POSITION]`

	keysQuery = `
SELECT
	[kcu].[TABLE_SCHEMA],
	[kcu].[TABLE_NAME],
	[kcu].[COLUMN_NAME],
	[tc].[CONSTRAINT_TYPE],
	(
		SELECT COUNT(*)
		FROM [INFORMATION_SCHEMA].[KEY_COLUMN_USAGE] [k2]
		WHERE [k2].[CONSTRAINT_SCHEMA] = [kcu].[CONSTRAINT_SCHEMA]
		AND [k2].[CONSTRAINT_NAME] = [kcu].[CONSTRAINT_NAME]
	) AS [column_count]
FROM
	[INFORMATION_SCHEMA].[KEY_COLUMN_USAGE] [kcu]
	INNER JOIN [INFORMATION_SCHEMA].[TABLE_CONSTRAINTS] [tc]
	ON [tc].[CONSTRAINT_SCHEMA] = [kcu].[CONSTRAINT_SCHEMA]
	AND [tc].[CONSTRAINT_NAME] = [kcu].[CONSTRAINT_NAME]
WHERE
	[tc].[CONSTRAINT_TYPE] IN ('PRIMARY KEY', 'UNIQUE')
ORDER BY
	[kcu].[TABLE_SCHEMA], [kcu].[TABLE_NAME], [kcu].[ORDINAL_POSITION]`

	fksQuery = `
SELECT
	[fk].[TABLE_SCHEMA],
	[fk].[TABLE_NAME],
	[fk].[COLUMN_NAME],
	[pk].[TABLE_SCHEMA] AS [ref_schema],
	[pk].[TABLE_NAME] AS [ref_table],
	[pk].[COLUMN_NAME] AS [ref_column],
	(
		SELECT COUNT(*)
		FROM [INFORMATION_SCHEMA].[KEY_COLUMN_USAGE] [k2]
		WHERE [k2].[CONSTRAINT_SCHEMA] = [fk].[CONSTRAINT_SCHEMA]
		AND [k2].[CONSTRAINT_NAME] = [fk].[CONSTRAINT_NAME]
	) AS [column_count]
FROM
	[INFORMATION_SCHEMA].[REFERENTIAL_CONSTRAINTS] [rc]
	INNER JOIN [INFORMATION_SCHEMA].[KEY_COLUMN_USAGE] [fk]
	ON [fk].[CONSTRAINT_SCHEMA] = [rc].[CONSTRAINT_SCHEMA]
	AND [fk].[CONSTRAINT_NAME] = [rc].[CONSTRAINT_NAME]
	INNER JOIN [INFORMATION_SCHEMA].[KEY_COLUMN_USAGE] [pk]
	ON [pk].[CONSTRAINT_SCHEMA] = [rc].[UNIQUE_CONSTRAINT_SCHEMA]
	AND [pk].[CONSTRAINT_NAME] = [rc].[UNIQUE_CONSTRAINT_NAME]
	AND [pk].[ORDINAL_POSITION] = [fk].[ORDINAL_POSITION]
ORDER BY
	[fk].[TABLE_SCHEMA], [fk].[TABLE_NAME], [fk].[ORDINAL_POSITION]`
)
