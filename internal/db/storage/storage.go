// Package storage defines the document store contract shared by every
// backend: collections of schemaless documents queried by equality filters.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// AttributeID addresses the document id in a Query.
const AttributeID = "$id"

// Query is an equality filter: the attribute must equal one of Values.
type Query struct {
	Attribute string
	Values    []string
}

// Equal builds an equality Query.
func Equal(attribute string, values ...string) Query {
	return Query{Attribute: attribute, Values: values}
}

// Document is one stored record.
type Document struct {
	ID         string         `json:"$id"`
	Collection string         `json:"$collectionId"`
	CreatedAt  time.Time      `json:"$createdAt"`
	Data       map[string]any `json:"data"`
}

// DocumentList is the result of a listing. Documents keep insertion order.
type DocumentList struct {
	Total     int
	Documents []Document
}

// Storage is implemented by appwritedb, postgresdb, jsondb and memorystorage.
type Storage interface {
	ListDocuments(ctx context.Context, collection string, queries ...Query) (DocumentList, error)
	CreateDocument(ctx context.Context, collection string, data map[string]any) (Document, error)
	Ping(ctx context.Context) error
	Close() error
}

// Encode turns a model into document data. Attributes starting with "$" are
// owned by the store and dropped.
func Encode(model any) (map[string]any, error) {
	raw, err := json.Marshal(model)
	if err != nil {
		return nil, err
	}

	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	for key := range data {
		if len(key) > 0 && key[0] == '$' {
			delete(data, key)
		}
	}

	return data, nil
}

// Decode fills model from a document, exposing the id as "$id".
func Decode(doc Document, model any) error {
	data := make(map[string]any, len(doc.Data)+1)
	for key, value := range doc.Data {
		data[key] = value
	}
	data[AttributeID] = doc.ID

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, model)
}

// Matches reports whether doc satisfies every query.
func Matches(doc Document, queries []Query) bool {
	for _, query := range queries {
		var actual string
		if query.Attribute == AttributeID {
			actual = doc.ID
		} else {
			value, ok := doc.Data[query.Attribute]
			if !ok || value == nil {
				return false
			}
			actual = fmt.Sprint(value)
		}

		found := false
		for _, expected := range query.Values {
			if actual == expected {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
