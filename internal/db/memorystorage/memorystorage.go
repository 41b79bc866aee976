package memorystorage

import (
	"github.com/patric-chuzhbe/favsync/internal/db/jsondb"
)

// MemoryStorage keeps users in process memory only.
type MemoryStorage struct {
	*jsondb.JSONDB
}

func New() (*MemoryStorage, error) {
	db, err := jsondb.New("")
	if err != nil {
		return nil, err
	}

	return &MemoryStorage{JSONDB: db}, nil
}
