// Package access defines the interfaces for access control.
//
// A credential identifies a protected resource, like a contract command, and
// an access service answers whether a group of identities has been granted
// that credential. The grants themselves live in a store so that the service
// stays stateless.
package access

import (
	"encoding"

	"github.com/veilinglabs/klok/core/store"
)

// Identity is the interface to uniquely identify a signer.
type Identity interface {
	encoding.TextMarshaler

	// Equal returns true when the other object is equal to the identity.
	Equal(other interface{}) bool
}

// Credential is the interface to define the elements to access a resource.
type Credential interface {
	// GetID returns the identifier of the credential.
	GetID() []byte

	// GetRule returns the rule that is targeted by the credential.
	GetRule() string
}

// Service is the interface of an access service that will allow or deny
// requests to access resources.
type Service interface {
	// Match returns nil if the group of identities is allowed to use the
	// credential, otherwise a meaningful error on the reason of the refusal.
	Match(store store.Readable, creds Credential, idents ...Identity) error

	// Grant updates the store so that the group of identities will match the
	// credential.
	Grant(store store.Snapshot, creds Credential, idents ...Identity) error
}
