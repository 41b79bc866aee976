// Package jsondb is a user repository persisted as a single JSON file.
// Every PutUser rewrites the file, so a crash loses at most the write in flight.
package jsondb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/patric-chuzhbe/favsync/internal/db/storage"
	"github.com/patric-chuzhbe/favsync/internal/user"
)

type JSONDB struct {
	fileName string
	mu       sync.RWMutex
	Cache    CacheStruct
}

type CacheStruct struct {
	Users map[string]*user.User
}

func initDBFile(fileName string) error {
	return writeToJSONFile(fileName, CacheStruct{Users: map[string]*user.User{}})
}

func writeToJSONFile(fileName string, cache interface{}) error {
	jsonData, err := json.MarshalIndent(cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fileName), filepath.Base(fileName)+".*.tmp")
	if err != nil {
		return fmt.Errorf("error creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(jsonData); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing to file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), fileName); err != nil {
		return fmt.Errorf("error replacing file: %w", err)
	}

	return nil
}

func parseJSONFile(fileName string, cache *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	err = decoder.Decode(cache)
	if err != nil {
		return err
	}

	if cache.Users == nil {
		cache.Users = map[string]*user.User{}
	}

	return nil
}

// New opens fileName, creating it when absent. An empty fileName yields a
// purely in-memory database.
func New(fileName string) (*JSONDB, error) {
	simpleJSONDB := &JSONDB{
		fileName: fileName,
		Cache:    CacheStruct{Users: map[string]*user.User{}},
	}
	if fileName == "" {
		return simpleJSONDB, nil
	}

	err := parseJSONFile(simpleJSONDB.fileName, &simpleJSONDB.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("in internal/db/jsondb/jsondb.go/New(): error while `parseJSONFile()` calling: %w", err)
		}
		if err := initDBFile(fileName); err != nil {
			return nil, fmt.Errorf("in internal/db/jsondb/jsondb.go/New(): error while `initDBFile()` calling: %w", err)
		}
	}

	return simpleJSONDB, nil
}

func (db *JSONDB) GetUser(ctx context.Context, email string) (*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	usr, found := db.Cache.Users[email]
	if !found {
		return nil, storage.ErrUserNotFound
	}

	return usr.Clone(), nil
}

func (db *JSONDB) PutUser(ctx context.Context, usr *user.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	previous, existed := db.Cache.Users[usr.Email]
	db.Cache.Users[usr.Email] = usr.Clone()

	if err := db.flush(); err != nil {
		// Memory must not run ahead of the file.
		if existed {
			db.Cache.Users[usr.Email] = previous
		} else {
			delete(db.Cache.Users, usr.Email)
		}
		return err
	}

	return nil
}

func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

func (db *JSONDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.flush()
}

func (db *JSONDB) flush() error {
	if db.fileName == "" {
		return nil
	}

	if err := writeToJSONFile(db.fileName, db.Cache); err != nil {
		return fmt.Errorf("in internal/db/jsondb/jsondb.go/flush(): error while `writeToJSONFile()` calling: %w", err)
	}

	return nil
}
