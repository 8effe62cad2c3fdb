package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// KV is the storage collaborator used by the sync engine.
//
// Get returns (nil, false, nil) for an absent key. Implementations must be
// safe for concurrent use.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Clear(ctx context.Context) error
	Close() error
}

// Driver names accepted by OpenDriver.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
	DriverMemory = "memory"
)

// OpenDriver opens a KV backend by driver name.
// The path is a file for sqlite, a directory for badger, and ignored for memory.
func OpenDriver(driver, path string) (KV, error) {
	switch driver {
	case DriverSQLite, "":
		if path == "" {
			return nil, fmt.Errorf("sqlite store requires a path")
		}
		return Open(path)
	case DriverBadger:
		if path == "" {
			return nil, fmt.Errorf("badger store requires a directory")
		}
		return NewBadgerStore(path)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
