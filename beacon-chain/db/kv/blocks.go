package kv

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	types "github.com/prysmaticlabs/eth2-types"
	"go.opencensus.io/trace"

	"github.com/emberchain/ember/beacon-chain/core/helpers"
	"github.com/emberchain/ember/beacon-chain/forkchoice"
	"github.com/emberchain/ember/shared/interfaces"
	"github.com/emberchain/ember/shared/traceutil"
)

// ContainsFinalizedBlock checks if a finalized block by root exists in the db.
func (s *Store) ContainsFinalizedBlock(ctx context.Context, blockRoot [32]byte) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.ContainsFinalizedBlock")
	defer span.End()
	return s.contains(finalizedBlockKey(blockRoot))
}

// ContainsUnfinalizedBlock checks if an unfinalized block by root exists in the db.
func (s *Store) ContainsUnfinalizedBlock(ctx context.Context, blockRoot [32]byte) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.ContainsUnfinalizedBlock")
	defer span.End()
	return s.contains(unfinalizedBlockKey(blockRoot))
}

// FinalizedBlockByRoot retrieves a finalized block by root, or nil if none
// is stored.
func (s *Store) FinalizedBlockByRoot(ctx context.Context, blockRoot [32]byte) (interfaces.SignedBeaconBlock, error) {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.FinalizedBlockByRoot")
	defer span.End()

	if cached, ok := s.blockCache.Get(string(blockRoot[:])); ok {
		return cached.(interfaces.SignedBeaconBlock), nil
	}
	blk, err := s.getBlock(finalizedBlockKey(blockRoot))
	if err != nil {
		traceutil.AnnotateError(span, err)
		return nil, err
	}
	if blk != nil {
		// The cache budget is in bytes; each entry costs its encoded size.
		if enc, err := blk.MarshalSSZ(); err == nil {
			s.blockCache.Set(string(blockRoot[:]), blk, int64(len(enc)))
		}
	}
	return blk, nil
}

// UnfinalizedBlockByRoot retrieves an unfinalized block by root, or nil if
// none is stored. Unfinalized blocks are not cached; they are promoted or
// discarded at the next finality event.
func (s *Store) UnfinalizedBlockByRoot(ctx context.Context, blockRoot [32]byte) (interfaces.SignedBeaconBlock, error) {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.UnfinalizedBlockByRoot")
	defer span.End()
	return s.getBlock(unfinalizedBlockKey(blockRoot))
}

// BlockRootBySlot returns the canonical chain's block root at the given slot.
func (s *Store) BlockRootBySlot(ctx context.Context, slot types.Slot) ([32]byte, bool, error) {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.BlockRootBySlot")
	defer span.End()
	return s.getRoot(blockRootBySlotKey(slot))
}

// BlockRootBySlotWithStore is like BlockRootBySlot, but consults the
// in-memory fork-choice store first. The store's answer is used only when
// its nearest link sits exactly at the requested slot.
func (s *Store) BlockRootBySlotWithStore(ctx context.Context, store forkchoice.HeadReader, slot types.Slot) ([32]byte, bool, error) {
	if store != nil {
		if chainLink := store.ChainLinkBeforeOrAt(slot); chainLink != nil && chainLink.Slot() == slot {
			return chainLink.BlockRoot, true, nil
		}
	}
	return s.BlockRootBySlot(ctx, slot)
}

// BlockBySlot returns the canonical finalized block at the given slot along
// with its root. Unfinalized blocks are deliberately not consulted, keeping
// this consistent with ContainsFinalizedBlock-style checks; callers that
// need in-flight forks go through the fork-choice store instead.
func (s *Store) BlockBySlot(ctx context.Context, slot types.Slot) (interfaces.SignedBeaconBlock, [32]byte, error) {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.BlockBySlot")
	defer span.End()

	blockRoot, ok, err := s.BlockRootBySlot(ctx, slot)
	if err != nil || !ok {
		return nil, [32]byte{}, err
	}
	blk, err := s.FinalizedBlockByRoot(ctx, blockRoot)
	if err != nil || blk == nil {
		return nil, [32]byte{}, err
	}
	return blk, blockRoot, nil
}

// SlotByStateRoot returns the slot whose canonical block carries the given
// state root.
func (s *Store) SlotByStateRoot(ctx context.Context, stateRoot [32]byte) (types.Slot, bool, error) {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.SlotByStateRoot")
	defer span.End()
	return s.getSlot(slotByStateRootKey(stateRoot))
}

// GenesisBlockRoot returns the block root recorded at the genesis slot.
func (s *Store) GenesisBlockRoot(ctx context.Context, store forkchoice.HeadReader) ([32]byte, error) {
	root, ok, err := s.BlockRootBySlotWithStore(ctx, store, s.cfg.ChainConfig.GenesisSlot)
	if err != nil {
		return [32]byte{}, err
	}
	if !ok {
		return [32]byte{}, ErrGenesisBlockRootNotFound
	}
	return root, nil
}

// DependentRoot returns the block root on which proposer duties for the
// given epoch depend: the root at the last slot of the preceding epoch, or
// the genesis block root for epoch 0.
func (s *Store) DependentRoot(ctx context.Context, store forkchoice.HeadReader, st interfaces.BeaconState, epoch types.Epoch) ([32]byte, error) {
	startSlot := helpers.StartSlot(epoch)
	if startSlot == 0 {
		root, err := s.GenesisBlockRoot(ctx, store)
		if err != nil {
			return [32]byte{}, errors.Wrap(ErrDependentRootLookupFailed, err.Error())
		}
		return root, nil
	}
	root, err := st.BlockRootAtSlot(startSlot - 1)
	if err != nil {
		return [32]byte{}, errors.Wrap(ErrDependentRootLookupFailed, err.Error())
	}
	return root, nil
}

// FinalizedBlockCount iterates the finalized block family and counts its
// entries. Intended for tests and debug endpoints, not hot paths.
func (s *Store) FinalizedBlockCount(ctx context.Context) (int, error) {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.FinalizedBlockCount")
	defer span.End()

	iter, err := s.db.IteratorAscending(finalizedBlockKey([32]byte{}))
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := iter.Close(); err != nil {
			log.WithError(err).Error("Could not close iterator")
		}
	}()
	count := 0
	for iter.Next() {
		// "b_nf" keys sort between "b9..." and "ba..." inside the finalized
		// family; skip them instead of ending the scan.
		if hasUnfinalizedBlockPrefix(iter.Key()) {
			continue
		}
		if !bytes.HasPrefix(iter.Key(), []byte(finalizedBlockPrefix)) {
			break
		}
		count++
	}
	return count, iter.Error()
}
