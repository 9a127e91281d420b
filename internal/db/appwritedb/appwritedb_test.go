package appwritedb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/jjbank/internal/db/storage"
	"github.com/patric-chuzhbe/jjbank/internal/identity"
)

type fakeAPI struct {
	gotQueries []string
	gotData    map[string]any
}

func (f *fakeAPI) ListDocuments(_ context.Context, databaseID, collectionID string, queries []string) (*identity.RawDocumentList, error) {
	f.gotQueries = queries
	return &identity.RawDocumentList{
		Total: 1,
		Documents: []map[string]any{{
			"$id":           "doc-1",
			"$createdAt":    "2024-05-01T10:00:00.000+00:00",
			"$collectionId": collectionID,
			"userId":        "u1",
		}},
	}, nil
}

func (f *fakeAPI) CreateDocument(_ context.Context, _, _, documentID string, data map[string]any) (map[string]any, error) {
	f.gotData = data
	created := map[string]any{"$id": "doc-2"}
	for k, v := range data {
		created[k] = v
	}
	return created, nil
}

func (f *fakeAPI) Health(context.Context) error {
	return nil
}

func TestAppwriteDB(t *testing.T) {
	api := &fakeAPI{}
	db := New(api, "main")
	ctx := context.Background()

	list, err := db.ListDocuments(ctx, "users", storage.Equal("userId", "u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{`{"method":"equal","attribute":"userId","values":["u1"]}`}, api.gotQueries)
	require.Len(t, list.Documents, 1)
	doc := list.Documents[0]
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, 2024, doc.CreatedAt.Year())
	assert.Equal(t, map[string]any{"userId": "u1"}, doc.Data)

	created, err := db.CreateDocument(ctx, "users", map[string]any{"userId": "u2"})
	require.NoError(t, err)
	assert.Equal(t, "doc-2", created.ID)
	assert.Equal(t, "u2", created.Data["userId"])
	assert.NoError(t, db.Ping(ctx))
}
