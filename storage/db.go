package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrKeyNotFound is returned by GetKey when nothing is stored under the key.
var ErrKeyNotFound = badger.ErrKeyNotFound

type Config struct {
	Path string
	// InMemory keeps everything in RAM, Path is ignored. Used by tests.
	InMemory bool
}

type Storage interface {
	Close() error

	Exist(key []byte) (bool, error)
	GetKey(key []byte) ([]byte, error)
	GetByPrefix(prefix []byte) ([]*KeyValueItem, error)
	ListKeys(prefix string) ([]string, error)

	Set(key, value []byte) error

	GetCounter(key []byte, defaultValue ...uint64) (uint64, error)
	IncCounter(key []byte, defaultValue ...uint64) (uint64, error)
	SetCounter(key []byte, value uint64) error
	Vacuum() error

	Backup(ctx context.Context, w io.Writer, since uint64) (uint64, error)
	Load(ctx context.Context, r io.Reader) error

	DbPath() string
}

type KeyValueItem struct {
	Key   []byte
	Value []byte
}

type BadgerStorage struct {
	config *Config
	db     *badger.DB
}

// Create storage pool at the particular path
func NewWithPath(path string) (Storage, error) {
	return New(&Config{
		Path: path,
	})
}

// Create storage pool with the given config
func New(c *Config) (Storage, error) {
	opts := badger.DefaultOptions(c.Path)
	if c.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}

	db, err := badger.Open(
		opts.WithSyncWrites(!c.InMemory).WithLogger(nil),
	)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", c.Path, err)
	}

	return &BadgerStorage{
		config: c,
		db:     db,
	}, nil
}

func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

func (s *BadgerStorage) Set(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// GetByPrefix return a list of key/value item whoser key prefix matches
func (s *BadgerStorage) GetByPrefix(prefix []byte) ([]*KeyValueItem, error) {
	var result []*KeyValueItem

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 30
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			k := item.KeyCopy(nil)
			v, e := item.ValueCopy(nil)
			if e != nil {
				return e
			}

			result = append(result, &KeyValueItem{
				Key:   k,
				Value: v,
			})
		}
		return nil
	})

	return result, err
}

// ListKeys is a key only iteration, values are never loaded
func (s *BadgerStorage) ListKeys(prefix string) ([]string, error) {
	var keys []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})

	return keys, err
}

func (s *BadgerStorage) Exist(key []byte) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err != nil {
			return err
		}

		found = true
		return nil
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return found, err
}

func (s *BadgerStorage) GetKey(key []byte) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			value = append([]byte{}, val...)
			return nil
		})
	})

	return value, err
}

func (s *BadgerStorage) Vacuum() error {
	if s.config.InMemory {
		return nil
	}
	err := s.db.RunValueLogGC(0.7)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

func (s *BadgerStorage) DbPath() string {
	return s.config.Path
}

// GetCounter retrieves a counter value for a given key.
// If the key doesn't exist and defaultValue is provided, it returns the defaultValue.
func (s *BadgerStorage) GetCounter(key []byte, defaultValue ...uint64) (uint64, error) {
	var counter uint64

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			if len(defaultValue) > 0 {
				counter = defaultValue[0]
				return nil
			}
			return err
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			parsed, err := strconv.ParseUint(string(val), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid counter format: %w", err)
			}
			counter = parsed
			return nil
		})
	})

	if err != nil {
		return 0, err
	}

	return counter, nil
}

// IncCounter increments a counter value for a given key by 1.
// If the key doesn't exist it starts from defaultValue, or 0.
func (s *BadgerStorage) IncCounter(key []byte, defaultValue ...uint64) (uint64, error) {
	var newValue uint64

	err := s.db.Update(func(txn *badger.Txn) error {
		var startValue uint64
		if len(defaultValue) > 0 {
			startValue = defaultValue[0]
		}

		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			newValue = startValue + 1
		} else if err != nil {
			return err
		} else {
			err = item.Value(func(val []byte) error {
				current, err := strconv.ParseUint(string(val), 10, 64)
				if err != nil {
					return fmt.Errorf("invalid counter format: %w", err)
				}
				newValue = current + 1
				return nil
			})
			if err != nil {
				return err
			}
		}

		// Store as a string so we can inspect them easiser in console
		return txn.Set(key, []byte(strconv.FormatUint(newValue, 10)))
	})

	if err != nil {
		return 0, err
	}

	return newValue, nil
}

// SetCounter overwrites the counter at key.
func (s *BadgerStorage) SetCounter(key []byte, value uint64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte(strconv.FormatUint(value, 10)))
	})
}

// Backup streams every version newer than since to w and returns the version
// to pass as since for the next incremental backup.
func (s *BadgerStorage) Backup(ctx context.Context, w io.Writer, since uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.db.Backup(w, since)
}

func (s *BadgerStorage) Load(ctx context.Context, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Load(r, 16)
}
