// Package store defines the primitives of the key/value storage that contracts
// are executed against.
//
// A contract only ever sees a Snapshot. The ledger service decides what the
// snapshot is backed by and when its writes become durable, so that a
// rejected call leaves no trace in the store.
package store

// Readable is the interface for a readable store. A missing key returns a nil
// value and no error.
type Readable interface {
	Get(key []byte) ([]byte, error)
}

// Writable is the interface for a writable store.
type Writable interface {
	Set(key []byte, value []byte) error

	Delete(key []byte) error
}

// Snapshot is a state of the store that can be read and written independently
// of the durable state. A write is applied only to the snapshot reference.
type Snapshot interface {
	Readable
	Writable
}

// Transaction is a generic interface that store implementations can use to
// provide atomicity.
type Transaction interface {
	// OnCommit adds a callback to be executed after the transaction
	// successfully commits.
	OnCommit(func())
}
