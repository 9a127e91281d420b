package memorystorage

import (
	"github.com/patric-chuzhbe/jjbank/internal/db/jsondb"
)

// MemoryStorage is the fallback document store used when neither a database
// nor a file is configured. Everything is lost on shutdown.
type MemoryStorage struct {
	*jsondb.JSONDB
}

func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		JSONDB: jsondb.NewInMemory(),
	}, nil
}
