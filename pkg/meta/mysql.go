package meta

import (
	"context"
	"database/sql"
	"fmt"
)

// MySQLFetcher reads table schema from MySQL's information_schema:
// COLUMNS, STATISTICS, plus a PK/UK lookup, populating a TbMeta.
type MySQLFetcher struct{}

func (MySQLFetcher) FetchTbMeta(ctx context.Context, db *sql.DB, schema, table string) (*TbMeta, error) {
	tm := &TbMeta{Schema: schema, Table: table, ColType: make(map[string]ColType)}

	rows, err := db.QueryContext(ctx, `
		SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, CHARACTER_SET_NAME,
		       COLLATION_NAME, EXTRA, COLUMN_KEY
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ORDINAL_POSITION`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("meta: fetching columns for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, colType, isNullable, extra, columnKey string
		var charset, collation sql.NullString
		if err := rows.Scan(&name, &colType, &isNullable, &charset, &collation, &extra, &columnKey); err != nil {
			return nil, fmt.Errorf("meta: scanning column for %s.%s: %w", schema, table, err)
		}
		ct := ColType{
			Name:         name,
			NativeType:   colType,
			Nullable:     isNullable == "YES",
			Charset:      charset.String,
			Collation:    collation.String,
			AutoInc:      extra == "auto_increment",
			IsPrimaryKey: columnKey == "PRI",
			IsUniqueKey:  columnKey == "PRI" || columnKey == "UNI",
		}
		tm.Columns = append(tm.Columns, name)
		tm.ColType[name] = ct
		if charset.Valid && tm.Charset == "" {
			tm.Charset = charset.String
		}
		if collation.Valid && tm.Collation == "" {
			tm.Collation = collation.String
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tm.Columns) == 0 {
		return nil, fmt.Errorf("meta: table %s.%s not found or has no columns", schema, table)
	}

	keyCols, err := mysqlKeyColumns(ctx, db, schema, table)
	if err != nil {
		return nil, err
	}
	tm.KeyColumns = keyCols
	if len(keyCols) == 1 {
		if ct, ok := tm.ColType[keyCols[0]]; ok {
			tm.KeyIsAutoInc = ct.AutoInc
		}
	}
	return tm, nil
}

// mysqlKeyColumns resolves the primary key's columns in ordinal
// position, falling back to the first unique key if there is no
// primary key. If neither exists, the caller falls back to offset
// pagination.
func mysqlKeyColumns(ctx context.Context, db *sql.DB, schema, table string) ([]string, error) {
	cols, err := queryKeyColumns(ctx, db, schema, table, "PRIMARY")
	if err != nil {
		return nil, err
	}
	if len(cols) > 0 {
		return cols, nil
	}

	// No PRIMARY: find the first unique index name, then its columns.
	var indexName string
	row := db.QueryRowContext(ctx, `
		SELECT INDEX_NAME
		FROM information_schema.statistics
		WHERE table_schema = ? AND table_name = ? AND NON_UNIQUE = 0
		ORDER BY INDEX_NAME LIMIT 1`, schema, table)
	if err := row.Scan(&indexName); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("meta: finding unique index for %s.%s: %w", schema, table, err)
	}
	return queryKeyColumns(ctx, db, schema, table, indexName)
}

func queryKeyColumns(ctx context.Context, db *sql.DB, schema, table, indexName string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT COLUMN_NAME
		FROM information_schema.statistics
		WHERE table_schema = ? AND table_name = ? AND INDEX_NAME = ?
		ORDER BY SEQ_IN_INDEX`, schema, table, indexName)
	if err != nil {
		return nil, fmt.Errorf("meta: fetching key columns for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}
