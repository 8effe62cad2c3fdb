package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const defaultBadgerValueLogFileSize = 16 << 20 // 16MB, snapshots are small

// BadgerStore is the Badger-backed KV implementation.
type BadgerStore struct {
	db *badger.DB
}

var _ KV = (*BadgerStore)(nil)

// BadgerOption customizes how Badger is opened.
type BadgerOption func(*badger.Options) error

// WithBadgerValueLogFileSize sets max bytes per value log (vlog) file.
func WithBadgerValueLogFileSize(sizeBytes int64) BadgerOption {
	return func(opts *badger.Options) error {
		if sizeBytes <= 0 {
			return fmt.Errorf("badger value log file size must be > 0, got %d", sizeBytes)
		}
		*opts = opts.WithValueLogFileSize(sizeBytes)
		return nil
	}
}

// WithBadgerInMemory keeps all data in memory. The path is ignored.
func WithBadgerInMemory() BadgerOption {
	return func(opts *badger.Options) error {
		*opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
		return nil
	}
}

// NewBadgerStore opens (or creates) a Badger database in dir.
func NewBadgerStore(dir string, options ...BadgerOption) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithValueLogFileSize(defaultBadgerValueLogFileSize)
	opts.Logger = nil

	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(&opts); err != nil {
			return nil, err
		}
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

// Get returns the blob stored under key.
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.db.IsClosed() {
		return nil, false, ErrClosed
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (s *BadgerStore) Set(_ context.Context, key string, value []byte) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Clear drops every key.
func (s *BadgerStore) Clear(_ context.Context) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}
