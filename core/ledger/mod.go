// Package ledger defines the abstraction of the transaction ledger.
//
// The ledger processes the transactions it receives one at a time and keeps
// their effects in a persistent state. Each transaction is timestamped by the
// ledger when it is processed, therefore a contract that depends on the
// current time reads it from the execution step instead of the system clock.
package ledger

import (
	"context"
	"time"

	"github.com/veilinglabs/klok/core/store"
	"github.com/veilinglabs/klok/core/txn"
)

// Clock is the interface to read the current time. The ledger uses it to
// timestamp the transactions it processes.
type Clock interface {
	Now() time.Time
}

// TransactionResult is the result of a processed transaction.
type TransactionResult struct {
	// Transaction is the transaction that has been processed.
	Transaction txn.Transaction

	// Accepted is true when the effects of the transaction have been applied
	// to the state.
	Accepted bool

	// Message tells why the transaction has been refused.
	Message string
}

// Event is the event sent to the watchers after a transaction has been
// processed.
type Event struct {
	// Index is the index of the transaction since the creation of the ledger.
	Index uint64

	Transactions []TransactionResult
}

// Service is the interface of the ledger.
type Service interface {
	// Add processes the transaction and returns its result once its effects
	// have been committed.
	Add(tx txn.Transaction) (TransactionResult, error)

	// View runs the callback over a read-only snapshot of the current state.
	View(fn func(store.Readable) error) error

	// Timestamp returns the time the ledger would assign to a transaction
	// arriving now. Reads that depend on the current time use it instead of
	// the system clock, so that they agree with the timestamps of the steps.
	Timestamp() uint64

	// Watch returns a channel that streams the results of the upcoming
	// transactions. The channel closes when the context ends.
	Watch(ctx context.Context) <-chan Event
}
