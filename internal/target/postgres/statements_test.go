package postgres

import (
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/pgmigrate/internal/constraint"
	"github.com/tendant/pgmigrate/internal/schema"
)

func TestForeignKeyDDL(t *testing.T) {
	fk := foreignKey(constraint.Key{Namespace: "public", Relation: "orders", Name: "orders_user_fk"},
		"FOREIGN KEY (user_id) REFERENCES users(id)")

	assert.Equal(t, `ALTER TABLE "public"."orders" DROP CONSTRAINT "orders_user_fk"`, fk.DropDDL)
	assert.Equal(t, `ALTER TABLE "public"."orders" ADD CONSTRAINT "orders_user_fk" FOREIGN KEY (user_id) REFERENCES users(id)`, fk.AddDDL)
}

func TestForeignKeyDDLQuotesNames(t *testing.T) {
	fk := foreignKey(constraint.Key{Namespace: "Sales", Relation: `odd"name`, Name: "Fk"}, "FOREIGN KEY (a) REFERENCES b(a)")
	assert.Equal(t, `ALTER TABLE "Sales"."odd""name" DROP CONSTRAINT "Fk"`, fk.DropDDL)
}

func TestUpdateStatement(t *testing.T) {
	got := updateStatement("public", "users",
		schema.ColumnDefinition{Name: "id"},
		[]schema.ColumnDefinition{{Name: "avatar"}, {Name: "thumbnail"}})
	assert.Equal(t, `UPDATE "public"."users" SET "avatar" = $1, "thumbnail" = $2 WHERE "id" = $3`, got)
}

func TestTypes(t *testing.T) {
	for raw, want := range map[string]schema.SemanticType{
		"timestamp without time zone": schema.DateTime,
		"timestamp with time zone":    schema.DateTime,
		"bigint":                      schema.Int64,
		"bytea":                       schema.Bytes,
		"character varying":           schema.String,
		"boolean":                     schema.Bool,
		"uuid":                        schema.UUID,
		"integer":                     schema.Int32,
		"numeric":                     schema.Decimal,
	} {
		got, ok := Types.Lookup(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := Types.Lookup("jsonb")
	assert.False(t, ok)
}

func TestCheckUpdated(t *testing.T) {
	assert.NoError(t, checkUpdated(pgconn.NewCommandTag("UPDATE 1")))
	assert.ErrorIs(t, checkUpdated(pgconn.NewCommandTag("UPDATE 0")), ErrUnmatchedKey)
	assert.ErrorIs(t, checkUpdated(pgconn.NewCommandTag("UPDATE 2")), ErrUnmatchedKey)
}
