// Package mockstorage provides a testify-based mock implementation
// of the document storage interface.
// It is used for unit testing services by simulating store failures
// that the in-memory backend cannot produce.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/jjbank/internal/db/storage"
)

// StorageMock is a testify mock that implements storage.Storage.
type StorageMock struct {
	mock.Mock

	// OnCreateDocument is an optional function field that can be assigned
	// to define custom mock behavior for CreateDocument in tests.
	//
	// If set, CreateDocument will delegate to this function instead of
	// using testify's generic mock handler.
	OnCreateDocument func(ctx context.Context, collection string, data map[string]any) (storage.Document, error)
}

// ListDocuments mocks a collection listing.
func (m *StorageMock) ListDocuments(
	ctx context.Context,
	collection string,
	queries ...storage.Query,
) (storage.DocumentList, error) {
	args := m.Called(ctx, collection, queries)
	list, _ := args.Get(0).(storage.DocumentList)
	return list, args.Error(1)
}

// CreateDocument mocks a document write.
func (m *StorageMock) CreateDocument(
	ctx context.Context,
	collection string,
	data map[string]any,
) (storage.Document, error) {
	if m.OnCreateDocument != nil {
		return m.OnCreateDocument(ctx, collection, data)
	}
	args := m.Called(ctx, collection, data)
	doc, _ := args.Get(0).(storage.Document)
	return doc, args.Error(1)
}

// Ping mocks the pinger interface to simulate a health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks releasing the store.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
