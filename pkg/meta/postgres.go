package meta

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresFetcher reads table schema from information_schema,
// resolving the table's key as its primary key, else nothing (the
// table falls back to offset pagination for the snapshot). An index
// named by REPLICA IDENTITY USING INDEX is not looked up.
type PostgresFetcher struct{}

func (PostgresFetcher) FetchTbMeta(ctx context.Context, db *sql.DB, schema, table string) (*TbMeta, error) {
	tm := &TbMeta{Schema: schema, Table: table, ColType: make(map[string]ColType)}

	rows, err := db.QueryContext(ctx, `
		SELECT column_name, udt_name, is_nullable,
		       COALESCE(character_set_name, ''), COALESCE(collation_name, '')
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("meta: fetching columns for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, udtName, isNullable, charset, collation string
		if err := rows.Scan(&name, &udtName, &isNullable, &charset, &collation); err != nil {
			return nil, fmt.Errorf("meta: scanning column for %s.%s: %w", schema, table, err)
		}
		tm.Columns = append(tm.Columns, name)
		tm.ColType[name] = ColType{
			Name:       name,
			NativeType: udtName,
			Nullable:   isNullable == "YES",
			Charset:    charset,
			Collation:  collation,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tm.Columns) == 0 {
		return nil, fmt.Errorf("meta: table %s.%s not found or has no columns", schema, table)
	}

	keyCols, err := postgresKeyColumns(ctx, db, schema, table)
	if err != nil {
		return nil, err
	}
	tm.KeyColumns = keyCols
	for _, c := range keyCols {
		ct := tm.ColType[c]
		ct.IsPrimaryKey = true
		ct.IsUniqueKey = true
		tm.ColType[c] = ct
	}
	if len(keyCols) == 1 {
		tm.KeyIsAutoInc = postgresColumnIsIdentity(ctx, db, schema, table, keyCols[0])
	}
	return tm, nil
}

// postgresKeyColumns resolves the constraint backing the table's
// replica identity: its primary key if one exists, else nil (the
// table is assumed to run with REPLICA IDENTITY FULL, which this
// fetcher does not need an index for since CDC rows carry full
// before-images in that mode).
func postgresKeyColumns(ctx context.Context, db *sql.DB, schema, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2
		  AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kcu.ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("meta: fetching primary key for %s.%s: %w", schema, table, err)
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

// postgresColumnIsIdentity reports whether col is a GENERATED AS
// IDENTITY or serial-backed column, the closest Postgres analogue to
// MySQL's AUTO_INCREMENT.
func postgresColumnIsIdentity(ctx context.Context, db *sql.DB, schema, table, col string) bool {
	var isIdentity string
	row := db.QueryRowContext(ctx, `
		SELECT COALESCE(is_identity, 'NO')
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2 AND column_name = $3`, schema, table, col)
	if err := row.Scan(&isIdentity); err != nil {
		return false
	}
	return isIdentity == "YES"
}
