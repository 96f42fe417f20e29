// This file contains a volatile store to keep the accesses local to a node.

package acl

// Store is an in-memory key-value store. A node keeps the accesses granted to
// its contracts in such a store so that they stay independent of the ledger
// state.
//
// - implements store.Snapshot
type Store struct {
	values map[string][]byte
}

// NewStore creates a new empty store.
func NewStore() *Store {
	return &Store{
		values: make(map[string][]byte),
	}
}

// Get implements store.Readable. It returns the value associated to the key,
// or nil if it is not set.
func (s *Store) Get(key []byte) ([]byte, error) {
	return s.values[string(key)], nil
}

// Set implements store.Writable. It stores the value with the key.
func (s *Store) Set(key, value []byte) error {
	s.values[string(key)] = value

	return nil
}

// Delete implements store.Writable. It removes the key from the store.
func (s *Store) Delete(key []byte) error {
	delete(s.values, string(key))

	return nil
}
