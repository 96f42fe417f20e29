package crypto

import (
	"crypto/sha256"
	"hash"
)

// HashAlgorithm is the type to designate a supported hash algorithm.
type HashAlgorithm int

const (
	// Sha256 designates the SHA-256 algorithm.
	Sha256 HashAlgorithm = iota
)

// hashFactory is a hash factory backed by one of the supported algorithms.
//
// - implements crypto.HashFactory
type hashFactory struct {
	hashType HashAlgorithm
}

// NewHashFactory returns a new instance of the factory.
func NewHashFactory(a HashAlgorithm) hashFactory {
	return hashFactory{a}
}

// NewSha256Factory returns a factory for the SHA-256 algorithm.
func NewSha256Factory() hashFactory {
	return hashFactory{Sha256}
}

// New implements crypto.HashFactory. It returns a new Hash instance.
func (f hashFactory) New() hash.Hash {
	switch f.hashType {
	case Sha256:
		return sha256.New()
	default:
		panic("unknown hash type")
	}
}
