// Package appwritedb implements storage.Storage on top of the identity
// provider's document database, through the admin client.
package appwritedb

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/patric-chuzhbe/jjbank/internal/db/storage"
	"github.com/patric-chuzhbe/jjbank/internal/identity"
)

type documentsAPI interface {
	ListDocuments(ctx context.Context, databaseID, collectionID string, queries []string) (*identity.RawDocumentList, error)
	CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (map[string]any, error)
	Health(ctx context.Context) error
}

// AppwriteDB stores documents in one provider database.
type AppwriteDB struct {
	api        documentsAPI
	databaseID string
}

func New(api documentsAPI, databaseID string) *AppwriteDB {
	return &AppwriteDB{api: api, databaseID: databaseID}
}

func (db *AppwriteDB) ListDocuments(
	ctx context.Context,
	collection string,
	queries ...storage.Query,
) (storage.DocumentList, error) {
	encoded := make([]string, 0, len(queries))
	for _, query := range queries {
		raw, err := encodeQuery(query)
		if err != nil {
			return storage.DocumentList{}, err
		}
		encoded = append(encoded, raw)
	}

	list, err := db.api.ListDocuments(ctx, db.databaseID, collection, encoded)
	if err != nil {
		return storage.DocumentList{}, err
	}

	result := storage.DocumentList{
		Total:     list.Total,
		Documents: make([]storage.Document, 0, len(list.Documents)),
	}
	for _, raw := range list.Documents {
		result.Documents = append(result.Documents, toDocument(collection, raw))
	}

	return result, nil
}

func (db *AppwriteDB) CreateDocument(
	ctx context.Context,
	collection string,
	data map[string]any,
) (storage.Document, error) {
	created, err := db.api.CreateDocument(ctx, db.databaseID, collection, identity.UniqueID, data)
	if err != nil {
		return storage.Document{}, err
	}

	return toDocument(collection, created), nil
}

func (db *AppwriteDB) Ping(ctx context.Context) error {
	return db.api.Health(ctx)
}

func (db *AppwriteDB) Close() error {
	return nil
}

func encodeQuery(query storage.Query) (string, error) {
	raw, err := json.Marshal(struct {
		Method    string   `json:"method"`
		Attribute string   `json:"attribute"`
		Values    []string `json:"values"`
	}{
		Method:    "equal",
		Attribute: query.Attribute,
		Values:    query.Values,
	})

	return string(raw), err
}

// toDocument splits the provider's system attributes ("$id", "$createdAt",
// ...) from the user data.
func toDocument(collection string, raw map[string]any) storage.Document {
	doc := storage.Document{
		Collection: collection,
		Data:       map[string]any{},
	}

	for key, value := range raw {
		if !strings.HasPrefix(key, "$") {
			doc.Data[key] = value
			continue
		}
		switch key {
		case "$id":
			doc.ID, _ = value.(string)
		case "$createdAt":
			if s, ok := value.(string); ok {
				doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, s)
			}
		}
	}

	return doc
}
