package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const fileName = "kv.json"

// File stores every key in a single JSON document inside dir. Writes go to a
// temp file first and are renamed into place, so a crash leaves either the
// old or the new document.
type File struct {
	// Corrupt is set when the document on disk could not be decoded at open
	// time. The damaged file is moved aside to kv.json.corrupt.
	Corrupt error

	dir   string
	mu    sync.Mutex
	items map[string]string
}

// NewFile creates or opens a file store in dir.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("kvstore: create dir: %w", err)
	}
	f := &File{dir: dir}
	if err := f.load(); err != nil {
		return nil, fmt.Errorf("kvstore: load %s: %w", f.path(), err)
	}
	return f, nil
}

func (f *File) GetItem(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.items[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *File) SetItem(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.items[key]
	f.items[key] = value
	if err := f.persist(); err != nil {
		if had {
			f.items[key] = prev
		} else {
			delete(f.items, key)
		}
		return err
	}
	return nil
}

func (f *File) RemoveItem(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.items[key]
	if !had {
		return nil
	}
	delete(f.items, key)
	if err := f.persist(); err != nil {
		f.items[key] = prev
		return err
	}
	return nil
}

func (f *File) Close() error { return nil }

func (f *File) path() string {
	return filepath.Join(f.dir, fileName)
}

// persist must be called with mu held.
func (f *File) persist() error {
	data, err := json.MarshalIndent(f.items, "", "  ")
	if err != nil {
		return fmt.Errorf("kvstore: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, fileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("kvstore: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("kvstore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("kvstore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("kvstore: close: %w", err)
	}
	if err := os.Chmod(tmpName, 0640); err != nil {
		return fmt.Errorf("kvstore: chmod: %w", err)
	}
	if err := os.Rename(tmpName, f.path()); err != nil {
		return fmt.Errorf("kvstore: rename: %w", err)
	}
	return nil
}

func (f *File) load() error {
	f.items = make(map[string]string)
	data, err := os.ReadFile(f.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &f.items); err != nil {
		// Keep the damaged document for inspection and start empty.
		f.items = make(map[string]string)
		f.Corrupt = err
		return os.Rename(f.path(), f.path()+".corrupt")
	}
	return nil
}
