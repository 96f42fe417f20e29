// Package txn defines the abstraction of transactions.
//
// A transaction is a smart contract input. It is uniquely identifiable via a
// digest and it carries a nonce that acts as a sequence number chosen by the
// client. The transaction is also created by an identity that can be used for
// access control for instance.
//
// The manager helps to create transactions when some information, like the
// nonce, requires a request to an external service.
package txn

import (
	"io"

	"github.com/veilinglabs/klok/core/access"
)

// Fingerprinter is the interface to implement to write a deterministic binary
// representation of an object.
type Fingerprinter interface {
	Fingerprint(writer io.Writer) error
}

// Transaction is what triggers a smart contract execution by passing it as
// part of the input.
type Transaction interface {
	Fingerprinter

	// GetID returns the unique identifier for the transaction.
	GetID() []byte

	// GetNonce returns the nonce of the transaction.
	GetNonce() uint64

	// GetIdentity returns the identity that created the transaction.
	GetIdentity() access.Identity

	// GetArg is a getter for the arguments of the transaction.
	GetArg(key string) []byte
}

// Arg is a generic argument that can be stored in a transaction.
type Arg struct {
	Key   string
	Value []byte
}

// Manager is a manager to create transactions. It can help creating
// transactions when some information is required like the current nonce.
type Manager interface {
	Make(args ...Arg) (Transaction, error)

	Sync() error
}
