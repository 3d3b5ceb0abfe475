// manager.go — Process-wide key state behind a mutex.
package keystore

import "sync"

// Manager holds the key for one Store. It is safe for concurrent use: two
// EnsureKey calls can never both observe "no key" and generate twice.
type Manager struct {
	mu    sync.Mutex
	store *Store
	key   Key
}

// NewManager loads the key from store, if one exists.
func NewManager(store *Store) (*Manager, error) {
	key, _, err := store.LoadOrNone()
	if err != nil {
		return nil, err
	}
	return &Manager{store: store, key: key}, nil
}

// Store returns the backing store.
func (m *Manager) Store() *Store { return m.store }

// Key returns the current key, if one has been loaded or generated.
func (m *Manager) Key() (Key, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key.Clone(), m.key != nil
}

// EnsureKey returns the current key, generating and persisting one first if
// none exists yet.
func (m *Manager) EnsureKey() (Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, err := EnsureKey(&m.key, m.store)
	if err != nil {
		return nil, err
	}
	return key.Clone(), nil
}

// Rotate replaces the key with a freshly generated one. Every payload sealed
// under the previous key becomes unreadable.
func (m *Manager) Rotate() (Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := m.store.Persist(key); err != nil {
		return nil, err
	}
	m.key = key
	return key.Clone(), nil
}
