// Package keystore owns the single symmetric key used to seal hidden payloads:
// generation, flat-file persistence and the get-or-create lifecycle.
//
// The key file holds the raw key bytes and nothing else. A missing file means
// no key has been generated yet; it is not an error.
package keystore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xob0t/stegcrypt/pkg/crypt"
)

// DefaultPath is the key file location used when none is configured,
// relative to the process working directory.
const DefaultPath = "secret.key"

// Key is an opaque secret. Once persisted it must never change for the
// lifetime of its store.
type Key []byte

// Clone returns an independent copy of k.
func (k Key) Clone() Key {
	if k == nil {
		return nil
	}
	return append(Key(nil), k...)
}

// IOError reports a key file read or write failure.
type IOError struct {
	Op   string // "load" or "persist"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("keystore: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Store is a handle on one key file.
type Store struct {
	path string
}

// NewStore returns a store for the key file at path. An empty path selects
// DefaultPath.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path}
}

// Path returns the key file location.
func (s *Store) Path() string { return s.path }

// LoadOrNone reads the stored key. It reports ok=false when no key file
// exists and never creates one.
func (s *Store) LoadOrNone() (key Key, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &IOError{Op: "load", Path: s.path, Err: err}
	}
	return Key(data), true, nil
}

// Persist writes key to the store, replacing any existing content. The file
// is written next to its final location and renamed into place so a failed
// write never leaves a partial key behind.
func (s *Store) Persist(key Key) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".key-*")
	if err != nil {
		return &IOError{Op: "persist", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return &IOError{Op: "persist", Path: s.path, Err: err}
	}

	if err := tmp.Chmod(0o600); err != nil {
		return fail(err)
	}
	if _, err := tmp.Write(key); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "persist", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "persist", Path: s.path, Err: err}
	}
	return nil
}

// Generate returns a fresh random key in the format crypt expects.
func Generate() (Key, error) {
	key := make(Key, crypt.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("keystore: generate key: %w", err)
	}
	return key, nil
}

// EnsureKey returns *state when it holds a key. Otherwise it generates a key,
// persists it to store and only then records it in *state. On a persist
// failure *state is left empty so the next call retries.
//
// EnsureKey does no locking; see Manager for shared use.
func EnsureKey(state *Key, store *Store) (Key, error) {
	if *state != nil {
		return *state, nil
	}
	key, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := store.Persist(key); err != nil {
		return nil, err
	}
	*state = key
	return key, nil
}
