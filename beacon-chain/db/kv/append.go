package kv

import (
	"context"

	types "github.com/prysmaticlabs/eth2-types"
	"go.opencensus.io/trace"

	"github.com/emberchain/ember/beacon-chain/core/helpers"
	"github.com/emberchain/ember/beacon-chain/database"
	"github.com/emberchain/ember/beacon-chain/forkchoice"
	"github.com/emberchain/ember/shared/traceutil"
)

// AppendedBlockSlots lists the slots touched by a single Append call, for
// observability.
type AppendedBlockSlots struct {
	Finalized   []types.Slot
	Unfinalized []types.Slot
}

type flaggedChainLink struct {
	link      *forkchoice.ChainLink
	finalized bool
}

// Append records the given chain links in one atomic batch. The fork-choice
// control loop calls it after every finalization event with unfinalized
// links in forward order and finalized links in reverse order, newest first,
// as finalization reveals them.
//
// Per link: blocks and the slot-to-root index are written unless pruning is
// enabled; finalized links additionally index their state root. At most once
// per call, the first finalized link at an epoch start refreshes the
// checkpoint pointer pair. Separately, and also at most once per call, the
// first finalized epoch-start link whose epoch is a multiple of the archival
// interval gets an archival state snapshot unless pruning is enabled; it need
// not be the link that refreshed the checkpoint.
func (s *Store) Append(ctx context.Context, unfinalized, finalized []*forkchoice.ChainLink, store forkchoice.HeadReader) (*AppendedBlockSlots, error) {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.Append")
	defer span.End()

	slots := &AppendedBlockSlots{}
	var storeHeadSlot types.Slot
	checkpointStateAppended := false
	archivalStateAppended := false
	batch := make([]database.Entry, 0, 2*(len(unfinalized)+len(finalized)))

	chain := make([]flaggedChainLink, 0, len(unfinalized)+len(finalized))
	for _, chainLink := range unfinalized {
		if !chainLink.IsValid() {
			continue
		}
		chain = append(chain, flaggedChainLink{link: chainLink})
	}
	for i := len(finalized) - 1; i >= 0; i-- {
		chain = append(chain, flaggedChainLink{link: finalized[i], finalized: true})
	}

	if checkpoint, err := s.loadStateCheckpoint(); err != nil {
		traceutil.AnnotateError(span, err)
		return nil, err
	} else if checkpoint != nil {
		storeHeadSlot = checkpoint.headSlot
	}

	if len(chain) > 0 {
		if firstSlot := chain[0].link.Slot(); firstSlot > storeHeadSlot {
			storeHeadSlot = firstSlot
		}
	}

	log.WithField("headSlot", storeHeadSlot).Debug("Saving store head slot")

	for _, flagged := range chain {
		chainLink := flagged.link
		blockRoot := chainLink.BlockRoot
		block := chainLink.Block
		stateSlot := chainLink.Slot()

		if !s.cfg.PruneStorage {
			var blockEntry database.Entry
			var err error
			if flagged.finalized {
				slots.Finalized = append(slots.Finalized, stateSlot)
				blockEntry, err = encode(finalizedBlockKey(blockRoot), block)
			} else {
				slots.Unfinalized = append(slots.Unfinalized, stateSlot)
				blockEntry, err = encode(unfinalizedBlockKey(blockRoot), block)
			}
			if err != nil {
				traceutil.AnnotateError(span, err)
				return nil, err
			}
			batch = append(batch, blockEntry)
			batch = append(batch, encodeRoot(blockRootBySlotKey(stateSlot), blockRoot))
		}

		if !flagged.finalized {
			continue
		}

		if !s.cfg.PruneStorage {
			batch = append(batch, encodeSlot(slotByStateRootKey(block.StateRoot()), stateSlot))
		}

		if !checkpointStateAppended && helpers.IsEpochStart(stateSlot) {
			log.WithField("slot", stateSlot).Info("Saving checkpoint block and state")

			blockEntry, err := encode(blockCheckpointKey, block)
			if err != nil {
				traceutil.AnnotateError(span, err)
				return nil, err
			}
			batch = append(batch, blockEntry)

			checkpointEntry, err := encode(stateCheckpointKey, &stateCheckpoint{
				blockRoot: blockRoot,
				headSlot:  storeHeadSlot,
				state:     chainLink.State(store),
			})
			if err != nil {
				traceutil.AnnotateError(span, err)
				return nil, err
			}
			batch = append(batch, checkpointEntry)

			checkpointStateAppended = true
		}

		if !archivalStateAppended && !s.cfg.PruneStorage {
			stateEpoch := helpers.SlotToEpoch(stateSlot)
			appendState := helpers.IsEpochStart(stateSlot) &&
				uint64(stateEpoch)%s.cfg.ArchivalEpochInterval == 0

			if appendState {
				log.WithField("slot", stateSlot).Info("Saving archival state")

				stateEntry, err := encode(stateByBlockRootKey(blockRoot), chainLink.State(store))
				if err != nil {
					traceutil.AnnotateError(span, err)
					return nil, err
				}
				batch = append(batch, stateEntry)

				archivalStateAppended = true
			}
		}
	}

	if err := s.db.PutBatch(batch); err != nil {
		traceutil.AnnotateError(span, err)
		return nil, err
	}

	blocksSavedCounter.WithLabelValues("finalized").Add(float64(len(slots.Finalized)))
	blocksSavedCounter.WithLabelValues("unfinalized").Add(float64(len(slots.Unfinalized)))
	if archivalStateAppended {
		statesSavedCounter.Inc()
	}
	if checkpointStateAppended {
		checkpointHeadSlotGauge.Set(float64(storeHeadSlot))
	}

	return slots, nil
}
