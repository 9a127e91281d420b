// Package jsondb is a document store kept in memory and persisted to a JSON
// file on Close. It is meant for local development.
package jsondb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/jjbank/internal/db/storage"
)

type JSONDB struct {
	fileName string
	mu       sync.RWMutex
	Cache    CacheStruct
}

// CacheStruct is the on-disk layout: collection id to documents in insertion order.
type CacheStruct struct {
	Collections map[string][]storage.Document
}

func initDBFile(fileName string) error {
	dbFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(dbFile, `{
	"Collections": {}
}`)
	if err != nil {
		return err
	}
	return dbFile.Close()
}

func writeToJSONFile(fileName string, cache interface{}) error {
	jsonData, err := json.MarshalIndent(cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %s", err)
	}

	file, err2 := os.OpenFile(fileName, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
	if err2 != nil {
		return fmt.Errorf("error opening file: %s", err2)
	}
	defer file.Close()

	_, err = file.Write(jsonData)
	if err != nil {
		return fmt.Errorf("error writing to file: %s", err)
	}

	return nil
}

func parseJSONFile(fileName string, cache *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(cache)
}

// New loads fileName, creating it when missing.
func New(fileName string) (*JSONDB, error) {
	db := &JSONDB{
		fileName: fileName,
		Cache:    CacheStruct{},
	}

	err := parseJSONFile(db.fileName, &db.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := initDBFile(fileName); err != nil {
			return nil, err
		}
		if err := parseJSONFile(db.fileName, &db.Cache); err != nil {
			return nil, err
		}
	}
	if db.Cache.Collections == nil {
		db.Cache.Collections = map[string][]storage.Document{}
	}

	return db, nil
}

// NewInMemory returns a JSONDB that is never written to disk.
func NewInMemory() *JSONDB {
	return &JSONDB{
		Cache: CacheStruct{Collections: map[string][]storage.Document{}},
	}
}

func (db *JSONDB) ListDocuments(
	ctx context.Context,
	collection string,
	queries ...storage.Query,
) (storage.DocumentList, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	docs := db.Cache.Collections[collection]
	matched := funk.Filter(docs, func(doc storage.Document) bool {
		return storage.Matches(doc, queries)
	}).([]storage.Document)

	result := make([]storage.Document, len(matched))
	copy(result, matched)

	return storage.DocumentList{Total: len(result), Documents: result}, nil
}

func (db *JSONDB) CreateDocument(
	ctx context.Context,
	collection string,
	data map[string]any,
) (storage.Document, error) {
	doc := storage.Document{
		ID:         uuid.NewString(),
		Collection: collection,
		CreatedAt:  time.Now().UTC(),
		Data:       data,
	}

	db.mu.Lock()
	db.Cache.Collections[collection] = append(db.Cache.Collections[collection], doc)
	db.mu.Unlock()

	return doc, nil
}

func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

// Close writes the cache back to the file. In-memory instances do nothing.
func (db *JSONDB) Close() error {
	if db.fileName == "" {
		return nil
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	return writeToJSONFile(db.fileName, db.Cache)
}
