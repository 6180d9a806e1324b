// Package kvstore provides the small string key/value persistence layer the
// offline queue writes through. Backends: in-memory, a JSON file, SQLite, and
// an encrypting wrapper for any of them.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

var (
	// ErrNotFound is returned by GetItem when the key has never been set.
	ErrNotFound = errors.New("kvstore: key not found")
	// ErrSealed is returned when a sealed value cannot be opened with the
	// configured key.
	ErrSealed = errors.New("kvstore: cannot open sealed value")
)

// Storage is an async-safe string key/value store.
type Storage interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string) error
	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(ctx context.Context, key string) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend string // "memory", "file" or "sqlite"
	// Path is a directory for "file" and a database file for "sqlite".
	Path string
	// EncryptionKey enables sealing when non-empty. Must be 32 bytes.
	EncryptionKey []byte
}

// Open builds the backend described by opts.
func Open(opts Options) (Storage, error) {
	var (
		s   Storage
		err error
	)
	switch opts.Backend {
	case "", "memory":
		s = NewMemory()
	case "file":
		if opts.Path == "" {
			return nil, fmt.Errorf("kvstore: file backend requires a path")
		}
		s, err = NewFile(opts.Path)
	case "sqlite":
		if opts.Path == "" {
			return nil, fmt.Errorf("kvstore: sqlite backend requires a path")
		}
		if filepath.Ext(opts.Path) == "" {
			opts.Path = filepath.Join(opts.Path, "queue.db")
		}
		s, err = NewSQLite(opts.Path)
	default:
		return nil, fmt.Errorf("kvstore: unknown backend %q (use memory, file or sqlite)", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	if len(opts.EncryptionKey) > 0 {
		sealed, err := NewSealed(s, opts.EncryptionKey)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		return sealed, nil
	}
	return s, nil
}
