// Package execution defines the abstraction of the transaction execution.
package execution

import (
	"github.com/veilinglabs/klok/core/store"
	"github.com/veilinglabs/klok/core/txn"
)

// Step is the smallest unit of execution. It contains the transaction to
// process, the transactions of the same batch that have already been
// processed, and the time of the batch.
type Step struct {
	Previous []txn.Transaction
	Current  txn.Transaction

	// Timestamp is the Unix time of the batch in seconds. Every transaction of
	// a batch is executed with the same timestamp so that the outcome stays
	// deterministic for a given batch.
	Timestamp uint64
}

// Result is the result of a transaction execution.
type Result struct {
	// Accepted is the success state of the transaction.
	Accepted bool

	// Message gives a chance to the execution to explain why a transaction has
	// failed.
	Message string
}

// Service is the execution service that defines the primitives to execute a
// transaction.
type Service interface {
	// Execute must apply the transaction to the snapshot and return the result
	// of it.
	Execute(snap store.Snapshot, step Step) (Result, error)
}
