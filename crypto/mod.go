// Package crypto defines the cryptographic primitives shared by the modules.
//
// It defines the abstraction of a public key, a signature and a signer, so
// that the transaction layer does not depend on a specific signature scheme.
// The default scheme is implemented in the bls package.
package crypto

import (
	"encoding"
	"hash"
)

// HashFactory is an interface to produce a hash digest.
type HashFactory interface {
	New() hash.Hash
}

// RandGenerator is an interface to generate random values with a
// cryptographically secure source.
type RandGenerator interface {
	Read(buffer []byte) (int, error)
}

// PublicKey is a public identity that can be used to verify a signature.
type PublicKey interface {
	encoding.BinaryMarshaler
	encoding.TextMarshaler

	// Verify returns nil if the signature matches the message for this
	// public key.
	Verify(msg []byte, signature Signature) error

	// Equal returns true when the other object is the same public key.
	Equal(other interface{}) bool
}

// Signature is a verifiable element for a unique message.
type Signature interface {
	encoding.BinaryMarshaler

	// Equal returns true when the other object is the same signature.
	Equal(other Signature) bool
}

// Signer provides the primitives to sign a message with a unique identity.
type Signer interface {
	// GetPublicKey returns the public key of the signer.
	GetPublicKey() PublicKey

	// Sign signs the message and returns the signature, or an error if it
	// cannot sign.
	Sign(msg []byte) (Signature, error)
}
