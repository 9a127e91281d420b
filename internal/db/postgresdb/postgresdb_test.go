package postgresdb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/jjbank/internal/db/storage"
)

const migrationsDir = `../../../cmd/jjbank/migrations`

func TestBuildWhere(t *testing.T) {
	where, params := buildWhere("banks", []storage.Query{
		storage.Equal("userId", "u1"),
		storage.Equal(storage.AttributeID, "d1", "d2"),
	})

	assert.Equal(t, "collection = $1 AND data->>'userId' IN ($2) AND id::text IN ($3,$4)", where)
	assert.Equal(t, []interface{}{"banks", "u1", "d1", "d2"}, params)

	where, params = buildWhere("transactions", []storage.Query{
		storage.Equal("senderBankId", "b1"),
		storage.Equal("bankId", "item-1"),
	})
	assert.Equal(t, "collection = $1 AND data->>$2 IN ($3) AND data->>'bankId' IN ($4)", where)
	assert.Equal(t, []interface{}{"transactions", "senderBankId", "b1", "item-1"}, params)

	where, params = buildWhere("users", []storage.Query{storage.Equal("userId")})
	assert.Equal(t, "collection = $1 AND FALSE", where)
	assert.Len(t, params, 1)
}

// TestPostgresDB runs against a real server when TEST_DATABASE_DSN is set.
func TestPostgresDB(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN is not set")
	}

	ctx := context.Background()
	db, err := New(ctx, dsn, 5*time.Second, migrationsDir, WithDBPreReset(true))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, db.Close())
	}()

	require.NoError(t, db.Ping(ctx))

	first, err := db.CreateDocument(ctx, "banks", map[string]any{"userId": "u1", "accountId": "a1"})
	require.NoError(t, err)
	_, err = db.CreateDocument(ctx, "banks", map[string]any{"userId": "u1", "accountId": "a2"})
	require.NoError(t, err)

	list, err := db.ListDocuments(ctx, "banks", storage.Equal("userId", "u1"))
	require.NoError(t, err)
	require.Equal(t, 2, list.Total)
	assert.Equal(t, first.ID, list.Documents[0].ID)

	byAccount, err := db.ListDocuments(ctx, "banks", storage.Equal("accountId", "a2"))
	require.NoError(t, err)
	assert.Equal(t, 1, byAccount.Total)

	byID, err := db.ListDocuments(ctx, "banks", storage.Equal(storage.AttributeID, first.ID))
	require.NoError(t, err)
	require.Equal(t, 1, byID.Total)
	assert.Equal(t, "a1", byID.Documents[0].Data["accountId"])
}
