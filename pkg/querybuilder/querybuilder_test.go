package querybuilder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/replibridge/replibridge/pkg/engine"
)

func TestKeyedSelectMySQL(t *testing.T) {
	b := New(engine.MySQL)
	q, n := b.KeyedSelect("db1", "t1", []string{"id", "name"}, []string{"id"})
	assert.Equal(t, "SELECT `id`, `name` FROM `db1`.`t1` WHERE `id` = ?", q)
	assert.Equal(t, 1, n)
}

func TestKeyedSelectPostgres(t *testing.T) {
	b := New(engine.Postgres)
	q, n := b.KeyedSelect("db1", "t1", []string{"id", "name"}, []string{"id"})
	assert.Equal(t, `SELECT "id", "name" FROM "db1"."t1" WHERE "id" = $1`, q)
	assert.Equal(t, 1, n)
}

func TestKeyedSelectCompositeKeyPlaceholderOrder(t *testing.T) {
	b := New(engine.Postgres)
	q, n := b.KeyedSelect("db1", "t1", []string{"a", "b", "c"}, []string{"a", "b"})
	assert.Equal(t, `SELECT "a", "b", "c" FROM "db1"."t1" WHERE "a" = $1 AND "b" = $2`, q)
	assert.Equal(t, 2, n)
}

func TestBatchedSelectMySQL(t *testing.T) {
	b := New(engine.MySQL)
	q, n := b.BatchedSelect("db1", "t1", []string{"id"}, "id", 3)
	assert.Equal(t, "SELECT `id` FROM `db1`.`t1` WHERE `id` IN (?, ?, ?)", q)
	assert.Equal(t, 3, n)
}

func TestBatchedSelectArrayFallsBackOnMySQL(t *testing.T) {
	b := New(engine.MySQL)
	q, n := b.BatchedSelectArray("db1", "t1", []string{"id"}, "id", 2)
	assert.Equal(t, "SELECT `id` FROM `db1`.`t1` WHERE `id` IN (?, ?)", q)
	assert.Equal(t, 2, n)
}

func TestBatchedSelectArrayUsesAnyOnPostgres(t *testing.T) {
	b := New(engine.Postgres)
	q, n := b.BatchedSelectArray("db1", "t1", []string{"id"}, "id", 5)
	assert.Equal(t, `SELECT "id" FROM "db1"."t1" WHERE "id" = ANY($1)`, q)
	assert.Equal(t, 1, n)
}

func TestUpsertMySQLUsesOnDuplicateKey(t *testing.T) {
	b := New(engine.MySQL)
	q, n := b.Upsert("db1", "t1", []string{"id", "name", "age"}, []string{"id"})
	assert.True(t, strings.HasPrefix(q, "INSERT INTO `db1`.`t1` (`id`, `name`, `age`) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE"))
	assert.Contains(t, q, "`name` = VALUES(`name`)")
	assert.Contains(t, q, "`age` = VALUES(`age`)")
	assert.NotContains(t, q, "`id` = VALUES(`id`)")
	assert.Equal(t, 3, n)
}

func TestUpsertPostgresUsesOnConflict(t *testing.T) {
	b := New(engine.Postgres)
	q, n := b.Upsert("db1", "t1", []string{"id", "name"}, []string{"id"})
	assert.True(t, strings.HasPrefix(q, `INSERT INTO "db1"."t1" ("id", "name") VALUES ($1, $2) ON CONFLICT ("id") DO UPDATE SET`))
	assert.Contains(t, q, `"name" = EXCLUDED."name"`)
	assert.Equal(t, 2, n)
}

func TestUpsertPostgresAllKeyColumnsNoOpSet(t *testing.T) {
	b := New(engine.Postgres)
	q, _ := b.Upsert("db1", "t1", []string{"id"}, []string{"id"})
	assert.Contains(t, q, `DO UPDATE SET "id" = "id"`)
}

func TestUpsertCompositeKeyMySQL(t *testing.T) {
	b := New(engine.MySQL)
	q, _ := b.Upsert("db1", "t1", []string{"a", "b", "val"}, []string{"a", "b"})
	assert.Contains(t, q, "`val` = VALUES(`val`)")
	assert.NotContains(t, q, "`a` = VALUES(`a`)")
	assert.NotContains(t, q, "`b` = VALUES(`b`)")
}

func TestKeyedDeleteMySQL(t *testing.T) {
	b := New(engine.MySQL)
	q, n := b.KeyedDelete("db1", "t1", []string{"id"})
	assert.Equal(t, "DELETE FROM `db1`.`t1` WHERE `id` = ?", q)
	assert.Equal(t, 1, n)
}

func TestKeyedDeletePostgresComposite(t *testing.T) {
	b := New(engine.Postgres)
	q, n := b.KeyedDelete("db1", "t1", []string{"a", "b"})
	assert.Equal(t, `DELETE FROM "db1"."t1" WHERE "a" = $1 AND "b" = $2`, q)
	assert.Equal(t, 2, n)
}

func TestKeyedDeleteStarRocksUsesMySQLQuoting(t *testing.T) {
	b := New(engine.StarRocks)
	q, _ := b.KeyedDelete("db1", "t1", []string{"id"})
	assert.Equal(t, "DELETE FROM `db1`.`t1` WHERE `id` = ?", q)
}
