package kv

import (
	"context"
	"math"

	"github.com/pkg/errors"
	types "github.com/prysmaticlabs/eth2-types"
	"go.opencensus.io/trace"

	"github.com/emberchain/ember/beacon-chain/core/helpers"
	"github.com/emberchain/ember/shared/interfaces"
	"github.com/emberchain/ember/shared/traceutil"
)

// BlockIterator is a lazy, double-ended sequence of block lookups by root.
// Blocks are fetched from the finalized store first, then the unfinalized
// store. The iterator yields in the order its roots were collected; Reverse
// flips the direction, which reconstruction uses to replay forward a
// sequence gathered by a descending scan.
type BlockIterator struct {
	store    *Store
	roots    [][32]byte
	front    int
	back     int
	reversed bool
}

func (s *Store) newBlockIterator(roots [][32]byte) *BlockIterator {
	return &BlockIterator{store: s, roots: roots, back: len(roots)}
}

// Len returns the number of blocks not yet consumed.
func (it *BlockIterator) Len() int {
	return it.back - it.front
}

// Reverse flips the iteration direction. Consumed elements stay consumed.
func (it *BlockIterator) Reverse() *BlockIterator {
	it.reversed = !it.reversed
	return it
}

// Next returns the next block, or nil once the iterator is exhausted.
func (it *BlockIterator) Next(ctx context.Context) (interfaces.SignedBeaconBlock, error) {
	if it.front >= it.back {
		return nil, nil
	}
	var root [32]byte
	if it.reversed {
		it.back--
		root = it.roots[it.back]
	} else {
		root = it.roots[it.front]
		it.front++
	}
	return it.store.blockByRootAnyStore(ctx, root)
}

// blockByRootAnyStore looks a block up in the finalized store first, then
// the unfinalized store.
func (s *Store) blockByRootAnyStore(ctx context.Context, blockRoot [32]byte) (interfaces.SignedBeaconBlock, error) {
	if blk, err := s.FinalizedBlockByRoot(ctx, blockRoot); err != nil || blk != nil {
		return blk, err
	}
	if blk, err := s.UnfinalizedBlockByRoot(ctx, blockRoot); err != nil || blk != nil {
		return blk, err
	}
	return nil, errors.Wrapf(ErrBlockNotFound, "%#x", blockRoot)
}

// optionalStateStorage is the result of a local anchor search. Either
// nothing was found, only unfinalized blocks were found, or a full anchor
// triple was recovered.
type optionalStateStorage struct {
	state  interfaces.BeaconState
	block  interfaces.SignedBeaconBlock
	blocks *BlockIterator
}

func (o *optionalStateStorage) isNone() bool {
	return o.state == nil && o.blocks == nil
}

func (o *optionalStateStorage) isFull() bool {
	return o.state != nil
}

// StoredState reconstructs the canonical state at the given slot: the
// nearest archival snapshot at or below the slot is replayed through the
// intervening finalized blocks, then advanced through any trailing empty
// slots. Returns nil if no snapshot at or below the slot exists.
func (s *Store) StoredState(ctx context.Context, slot types.Slot) (interfaces.BeaconState, error) {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.StoredState")
	defer span.End()

	local, err := s.loadStateByIteration(ctx, slot)
	if err != nil {
		traceutil.AnnotateError(span, err)
		return nil, err
	}
	if !local.isFull() {
		return nil, nil
	}

	st := local.state
	st.SetCachedRoot(local.block.StateRoot())

	// States are persisted only once in several epochs; the collected
	// blocks carry the state the rest of the way toward the slot.
	for blocks := local.blocks.Reverse(); ; {
		blk, err := blocks.Next(ctx)
		if err != nil {
			traceutil.AnnotateError(span, err)
			return nil, err
		}
		if blk == nil {
			break
		}
		st, err = s.cfg.Transitioner.ExecuteStateTransition(ctx, st, blk)
		if err != nil {
			traceutil.AnnotateError(span, err)
			return nil, errors.Wrap(err, "could not replay block")
		}
	}

	if st.Slot() < slot {
		st, err = s.cfg.Transitioner.ProcessSlots(ctx, st, slot)
		if err != nil {
			traceutil.AnnotateError(span, err)
			return nil, errors.Wrap(err, "could not process slots")
		}
	}

	return st, nil
}

// stateCacheKey identifies a reconstructed state by the block it follows and
// the slot it was advanced to. Unlike a bare slot, the pair is stable across
// reorgs: the post-state of a given block at a given slot never changes.
type stateCacheKey struct {
	blockRoot [32]byte
	slot      types.Slot
}

// PreprocessedStatePostBlock reconstructs the post-state of the block with
// the given root, advanced to the target slot. It walks the parent chain
// backward through the finalized and unfinalized stores until a persisted
// state is found, then replays the accumulated blocks in forward order.
// Returns nil if the chain walks off the persisted record families.
func (s *Store) PreprocessedStatePostBlock(ctx context.Context, blockRoot [32]byte, slot types.Slot) (interfaces.BeaconState, error) {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.PreprocessedStatePostBlock")
	defer span.End()

	cacheKey := stateCacheKey{blockRoot: blockRoot, slot: slot}
	if cached, ok := s.stateCache.Get(cacheKey); ok {
		return cached.(interfaces.BeaconState).Copy(), nil
	}

	var blocks []interfaces.SignedBeaconBlock
	var st interfaces.BeaconState

	root := blockRoot
	for {
		anchor, err := s.getState(stateByBlockRootKey(root))
		if err != nil {
			traceutil.AnnotateError(span, err)
			return nil, err
		}
		if anchor != nil {
			if !helpers.IsEpochStart(anchor.Slot()) {
				return nil, errors.Wrapf(ErrPersistedSlotCannotContainAnchor, "slot %d", anchor.Slot())
			}
			st = anchor
			break
		}

		blk, err := s.FinalizedBlockByRoot(ctx, root)
		if err != nil {
			traceutil.AnnotateError(span, err)
			return nil, err
		}
		if blk == nil {
			if blk, err = s.UnfinalizedBlockByRoot(ctx, root); err != nil {
				traceutil.AnnotateError(span, err)
				return nil, err
			}
		}
		if blk == nil {
			return nil, nil
		}
		root = blk.ParentRoot()
		blocks = append(blocks, blk)
	}

	// Blocks were accumulated walking backward; replay them oldest first.
	for i := len(blocks) - 1; i >= 0; i-- {
		var err error
		st, err = s.cfg.Transitioner.ExecuteStateTransition(ctx, st, blocks[i])
		if err != nil {
			traceutil.AnnotateError(span, err)
			return nil, errors.Wrap(err, "could not replay block")
		}
	}

	if st.Slot() < slot {
		if s.cfg.MaxEmptySlots > 0 && uint64(slot-st.Slot()) > s.cfg.MaxEmptySlots {
			return nil, errors.Wrapf(ErrTooManyEmptySlots, "%d empty slots exceed cap of %d", slot-st.Slot(), s.cfg.MaxEmptySlots)
		}
		var err error
		st, err = s.cfg.Transitioner.ProcessSlots(ctx, st, slot)
		if err != nil {
			traceutil.AnnotateError(span, err)
			return nil, errors.Wrap(err, "could not process slots")
		}
	}

	s.stateCache.Add(cacheKey, st.Copy())

	return st, nil
}

// StoredStateByStateRoot resolves the state root to its slot and delegates
// to StoredState.
func (s *Store) StoredStateByStateRoot(ctx context.Context, stateRoot [32]byte) (interfaces.BeaconState, error) {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.StoredStateByStateRoot")
	defer span.End()

	slot, ok, err := s.SlotByStateRoot(ctx, stateRoot)
	if err != nil || !ok {
		return nil, err
	}
	st, err := s.StoredState(ctx, slot)
	if err != nil {
		return nil, err
	}
	if st == nil {
		// The index knows the slot but no snapshot chain covers it.
		return nil, errors.Wrapf(ErrStateNotFound, "slot %d", slot)
	}
	return st, nil
}

// loadLatestState recovers the most recent full anchor: the checkpoint fast
// path when the pointer is valid, otherwise a descending search across the
// whole slot index.
func (s *Store) loadLatestState(ctx context.Context) (*optionalStateStorage, error) {
	anchor, err := s.loadStateAndBlocksFromCheckpoint(ctx)
	if err != nil {
		return nil, err
	}
	if anchor != nil {
		return &optionalStateStorage{state: anchor.State, block: anchor.Block, blocks: anchor.UnfinalizedBlocks}, nil
	}

	log.Info("Latest state checkpoint was not found, attempting to find stored state by iteration")

	return s.loadStateByIteration(ctx, types.Slot(math.MaxUint64))
}

// loadStateAndBlocksFromCheckpoint restores the anchor from the checkpoint
// pointer pair: O(1) to the most recent finalized epoch boundary. Roots of
// every block past the checkpoint state are enumerated ascending and handed
// back as a lazy iterator.
func (s *Store) loadStateAndBlocksFromCheckpoint(ctx context.Context) (*AnchorData, error) {
	checkpoint, err := s.loadStateCheckpoint()
	if err != nil {
		return nil, err
	}
	if checkpoint == nil {
		return nil, nil
	}

	block, err := s.loadBlockCheckpoint()
	if err != nil {
		return nil, err
	}
	if block != nil {
		computed, err := block.HashTreeRoot()
		if err != nil {
			return nil, err
		}
		if computed != checkpoint.blockRoot {
			return nil, errors.Wrapf(ErrCheckpointBlockRootMismatch,
				"requested: %#x, computed: %#x", checkpoint.blockRoot, computed)
		}
	} else {
		if block, err = s.FinalizedBlockByRoot(ctx, checkpoint.blockRoot); err != nil {
			return nil, err
		}
		if block == nil {
			return nil, errors.Wrapf(ErrBlockNotFound, "%#x", checkpoint.blockRoot)
		}
	}

	if !helpers.IsEpochStart(checkpoint.state.Slot()) {
		return nil, errors.Wrapf(ErrPersistedSlotCannotContainAnchor, "slot %d", checkpoint.state.Slot())
	}

	iter, err := s.db.IteratorAscending(blockRootBySlotKey(checkpoint.state.Slot() + 1))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := iter.Close(); err != nil {
			log.WithError(err).Error("Could not close iterator")
		}
	}()

	var blockRoots [][32]byte
	for iter.Next() {
		if !hasBlockRootBySlotPrefix(iter.Key()) {
			break
		}
		root, err := decodeRoot(iter.Value())
		if err != nil {
			return nil, err
		}
		blockRoots = append(blockRoots, root)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	return &AnchorData{
		State:             checkpoint.state,
		Block:             block,
		UnfinalizedBlocks: s.newBlockIterator(blockRoots),
	}, nil
}

// loadStateByIteration scans the slot index downward from the given slot
// until a block with a persisted state is found. Roots passed over on the
// way down are returned as a lazy block iterator in descending slot order.
func (s *Store) loadStateByIteration(ctx context.Context, startFromSlot types.Slot) (*optionalStateStorage, error) {
	iter, err := s.db.IteratorDescending(blockRootBySlotKey(startFromSlot))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := iter.Close(); err != nil {
			log.WithError(err).Error("Could not close iterator")
		}
	}()

	var blockRoots [][32]byte
	for iter.Next() {
		if !hasBlockRootBySlotPrefix(iter.Key()) {
			break
		}
		blockRoot, err := decodeRoot(iter.Value())
		if err != nil {
			return nil, err
		}

		st, err := s.getState(stateByBlockRootKey(blockRoot))
		if err != nil {
			return nil, err
		}
		if st != nil {
			if !helpers.IsEpochStart(st.Slot()) {
				return nil, errors.Wrapf(ErrPersistedSlotCannotContainAnchor, "slot %d", st.Slot())
			}
			block, err := s.FinalizedBlockByRoot(ctx, blockRoot)
			if err != nil {
				return nil, err
			}
			if block == nil {
				return nil, errors.Wrapf(ErrBlockNotFound, "%#x", blockRoot)
			}
			return &optionalStateStorage{
				state:  st,
				block:  block,
				blocks: s.newBlockIterator(blockRoots),
			}, nil
		}

		blockRoots = append(blockRoots, blockRoot)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	if len(blockRoots) == 0 {
		return &optionalStateStorage{}, nil
	}

	return &optionalStateStorage{blocks: s.newBlockIterator(blockRoots)}, nil
}
