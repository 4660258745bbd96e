// Package interfaces defines the method sets of the consensus payloads the
// storage layer persists. Blocks, states and blob sidecars are fork-tagged
// variants owned by the state transition pipeline; storage treats them as
// opaque values reachable through these interfaces only.
package interfaces

import (
	types "github.com/prysmaticlabs/eth2-types"
)

// SignedBeaconBlock is an interface describing the method set of
// a signed block.
type SignedBeaconBlock interface {
	Slot() types.Slot
	ParentRoot() [32]byte
	StateRoot() [32]byte
	HashTreeRoot() ([32]byte, error)
	MarshalSSZ() ([]byte, error)
	IsNil() bool
}
