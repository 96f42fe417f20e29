// Package loader defines an abstraction to store a private key, or any other
// kind of secret, in a persistent storage and read it back on demand. A
// missing secret can either be reported as an error, or generated and saved
// on the fly when the caller provides a generator.
package loader

// Generator is the interface to implement to generate a key.
type Generator interface {
	Generate() ([]byte, error)
}

// Loader is an abstraction to load a key from a storage. It allows for
// instance to load a private key from the disk, or generate it if it doesn't
// exist.
type Loader interface {
	// LoadOrCreate tries to load the key and returns it if found, otherwise it
	// generates a new one using the generator and stores it.
	LoadOrCreate(Generator) ([]byte, error)

	// Load reads the key from the storage and expects it to exist.
	Load() ([]byte, error)
}
