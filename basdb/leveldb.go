package basdb

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDBDatabase persists through goleveldb.
type LevelDBDatabase struct {
	db *leveldb.DB
}

// NewLevelDBDatabase opens (or creates) the store under path.
func NewLevelDBDatabase(path string) (*LevelDBDatabase, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		Filter: filter.NewBloomFilter(10),
	})
	if lerrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	return &LevelDBDatabase{db: db}, nil
}

func (l *LevelDBDatabase) Has(key []byte) (bool, error) {
	return l.db.Has(key, nil)
}

func (l *LevelDBDatabase) Get(key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (l *LevelDBDatabase) Put(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDBDatabase) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDBDatabase) Close() error {
	return l.db.Close()
}
