package interfaces

import (
	types "github.com/prysmaticlabs/eth2-types"
)

// BeaconState is an interface describing the method set of a beacon state.
//
// States persisted by the storage layer are multiply referenced: the same
// value may back the latest checkpoint, an archival snapshot and the
// in-memory store. Callers that need to advance a state through the
// transition function must Copy it first.
type BeaconState interface {
	Slot() types.Slot
	HashTreeRoot() ([32]byte, error)
	// SetCachedRoot seeds the state's memoized hash tree root, avoiding a
	// full re-hash when the root is already known from the anchoring block.
	SetCachedRoot(root [32]byte)
	// BlockRootAtSlot returns the block root recorded in the state's
	// historical roots vector for the given slot.
	BlockRootAtSlot(slot types.Slot) ([32]byte, error)
	Copy() BeaconState
	MarshalSSZ() ([]byte, error)
	IsNil() bool
}
