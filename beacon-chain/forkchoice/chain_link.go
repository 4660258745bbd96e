// Package forkchoice defines the records the in-memory fork-choice store
// exchanges with the storage layer. The store itself (LMD-GHOST vote
// accounting, FFG finality) lives with the blockchain service; storage only
// persists and restores its chain of validated links.
package forkchoice

import (
	types "github.com/prysmaticlabs/eth2-types"

	"github.com/emberchain/ember/shared/interfaces"
)

// ChainLink is a validated block together with the bookkeeping the
// fork-choice store tracks for it. The post-state is exposed through a
// getter because the store materializes states lazily.
type ChainLink struct {
	BlockRoot   [32]byte
	Block       interfaces.SignedBeaconBlock
	StateGetter func(store HeadReader) interfaces.BeaconState
	Valid       bool
}

// Slot of the link's block.
func (c *ChainLink) Slot() types.Slot {
	return c.Block.Slot()
}

// IsValid reports whether the link's block passed full validation. Invalid
// links exist transiently for optimistically imported blocks.
func (c *ChainLink) IsValid() bool {
	return c.Valid
}

// State materializes the link's post-state, deduplicating through the
// store's state cache when one is supplied.
func (c *ChainLink) State(store HeadReader) interfaces.BeaconState {
	return c.StateGetter(store)
}

// HeadReader is the view of the in-memory fork-choice store the storage
// layer consults before falling back to disk.
type HeadReader interface {
	// ChainLinkBeforeOrAt returns the canonical link with the greatest slot
	// not exceeding the given slot, or nil if the store holds none.
	ChainLinkBeforeOrAt(slot types.Slot) *ChainLink
}
