// Package hashutil includes all hash-function related helpers for beacon chain objects.
package hashutil

import (
	"crypto/sha256"

	"golang.org/x/crypto/sha3"
)

// Hash defines a function that returns the
// Keccak-256/SHA3 hash of the data passed in.
func Hash(data []byte) [32]byte {
	var hash [32]byte

	h := sha3.NewLegacyKeccak256()

	// The hash interface never returns an error, for that reason
	// we are not handling the error below.

	// #nosec G104
	h.Write(data)
	h.Sum(hash[:0])

	return hash
}

// HashSha256 defines a function which returns the sha256 checksum of the data passed in.
func HashSha256(data []byte) [32]byte {
	return sha256.Sum256(data)
}
