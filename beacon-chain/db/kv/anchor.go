package kv

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	types "github.com/prysmaticlabs/eth2-types"
	"go.opencensus.io/trace"

	"github.com/emberchain/ember/beacon-chain/database"
	"github.com/emberchain/ember/shared/interfaces"
	"github.com/emberchain/ember/shared/traceutil"
)

// AnchorData is the triple the fork-choice store is rehydrated from: the
// anchor state and block, plus a lazy iterator over any locally persisted
// blocks past the anchor.
type AnchorData struct {
	State             interfaces.BeaconState
	Block             interfaces.SignedBeaconBlock
	UnfinalizedBlocks *BlockIterator
}

type strategyKind int

const (
	autoStrategy strategyKind = iota
	remoteStrategy
	anchorStrategy
)

// StateLoadStrategy selects the source of the bootstrap anchor.
type StateLoadStrategy struct {
	kind              strategyKind
	stateSlot         *types.Slot
	checkpointSyncURL string
	genesisProvider   GenesisProvider
	anchorBlock       interfaces.SignedBeaconBlock
	anchorState       interfaces.BeaconState
}

// AutoStrategy recovers a local anchor when one exists, falls back to remote
// checkpoint sync when a URL is given and nothing is stored locally, and
// anchors on genesis as a last resort. A non-nil stateSlot pins local
// recovery to the given slot instead of the latest.
func AutoStrategy(stateSlot *types.Slot, checkpointSyncURL string, genesisProvider GenesisProvider) StateLoadStrategy {
	return StateLoadStrategy{
		kind:              autoStrategy,
		stateSlot:         stateSlot,
		checkpointSyncURL: checkpointSyncURL,
		genesisProvider:   genesisProvider,
	}
}

// RemoteStrategy anchors on a remote checkpoint sync endpoint. A failed
// fetch is fatal.
func RemoteStrategy(checkpointSyncURL string) StateLoadStrategy {
	return StateLoadStrategy{
		kind:              remoteStrategy,
		checkpointSyncURL: checkpointSyncURL,
	}
}

// AnchorStrategy anchors on an explicitly supplied block and state, as used
// for weak subjectivity starts and tests.
func AnchorStrategy(block interfaces.SignedBeaconBlock, state interfaces.BeaconState) StateLoadStrategy {
	return StateLoadStrategy{
		kind:        anchorStrategy,
		anchorBlock: block,
		anchorState: state,
	}
}

// Load runs the three-way bootstrap and commits the chosen anchor in a
// single atomic batch. It returns the anchor triple and whether the anchor
// was fetched from a remote endpoint. This is the only storage operation
// that may suspend, while awaiting the HTTP client during checkpoint sync;
// cancelling it leaves no partial state.
func (s *Store) Load(ctx context.Context, client *http.Client, strategy StateLoadStrategy) (*AnchorData, bool, error) {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.Load")
	defer span.End()

	var anchorBlock interfaces.SignedBeaconBlock
	var anchorState interfaces.BeaconState
	var unfinalizedBlocks *BlockIterator
	loadedFromRemote := false

	switch strategy.kind {
	case autoStrategy:
		if strategy.genesisProvider == nil {
			return nil, false, errors.New("auto strategy requires a genesis provider")
		}

		// Attempt to load local state first: either latest or from the
		// specified slot.
		var local *optionalStateStorage
		var err error
		if strategy.stateSlot != nil {
			local, err = s.loadStateByIteration(ctx, *strategy.stateSlot)
		} else {
			local, err = s.loadLatestState(ctx)
		}
		if err != nil {
			traceutil.AnnotateError(span, err)
			return nil, false, err
		}

		if strategy.checkpointSyncURL != "" {
			// Do checkpoint sync only if nothing was recovered locally: no
			// state and no unfinalized blocks.
			if local.isNone() {
				remoteBlock, remoteState, err := s.fetchFinalized(ctx, client, strategy.checkpointSyncURL)
				if err == nil {
					anchorBlock = remoteBlock
					anchorState = remoteState
					unfinalizedBlocks = s.newBlockIterator(nil)
					loadedFromRemote = true
					break
				}
				log.WithError(err).Warn("Checkpoint sync failed")
			} else {
				log.Warn("Skipping checkpoint sync: existing database found; " +
					"pass --force-checkpoint-sync to force checkpoint sync")
			}
		}

		switch {
		case local.isFull():
			anchorState = local.state
			anchorBlock = local.block
			unfinalizedBlocks = local.blocks
		case local.blocks != nil:
			// State might not be found but unfinalized blocks could be present.
			anchorBlock = strategy.genesisProvider.GenesisBlock()
			anchorState = strategy.genesisProvider.GenesisState()
			unfinalizedBlocks = local.blocks
		default:
			anchorBlock = strategy.genesisProvider.GenesisBlock()
			anchorState = strategy.genesisProvider.GenesisState()
			unfinalizedBlocks = s.newBlockIterator(nil)
		}
	case remoteStrategy:
		remoteBlock, remoteState, err := s.fetchFinalized(ctx, client, strategy.checkpointSyncURL)
		if err != nil {
			traceutil.AnnotateError(span, err)
			return nil, false, err
		}
		anchorBlock = remoteBlock
		anchorState = remoteState
		unfinalizedBlocks = s.newBlockIterator(nil)
		loadedFromRemote = true
	case anchorStrategy:
		anchorBlock = strategy.anchorBlock
		anchorState = strategy.anchorState
		unfinalizedBlocks = s.newBlockIterator(nil)
	default:
		return nil, false, errors.New("unknown state load strategy")
	}

	anchorSlot := anchorBlock.Slot()
	anchorBlockRoot, err := anchorBlock.HashTreeRoot()
	if err != nil {
		traceutil.AnnotateError(span, err)
		return nil, false, err
	}
	anchorStateRoot := anchorBlock.StateRoot()

	log.WithField("slot", anchorSlot).Info("Loaded state")

	// The anchor commit is all-or-nothing: the block, both slot indices and
	// the state snapshot land in one batch.
	blockEntry, err := encode(finalizedBlockKey(anchorBlockRoot), anchorBlock)
	if err != nil {
		traceutil.AnnotateError(span, err)
		return nil, false, err
	}
	stateEntry, err := encode(stateByBlockRootKey(anchorBlockRoot), anchorState)
	if err != nil {
		traceutil.AnnotateError(span, err)
		return nil, false, err
	}
	if err := s.db.PutBatch([]database.Entry{
		blockEntry,
		encodeRoot(blockRootBySlotKey(anchorSlot), anchorBlockRoot),
		encodeSlot(slotByStateRootKey(anchorStateRoot), anchorSlot),
		stateEntry,
	}); err != nil {
		traceutil.AnnotateError(span, err)
		return nil, false, err
	}

	return &AnchorData{
		State:             anchorState,
		Block:             anchorBlock,
		UnfinalizedBlocks: unfinalizedBlocks,
	}, loadedFromRemote, nil
}

func (s *Store) fetchFinalized(ctx context.Context, client *http.Client, url string) (interfaces.SignedBeaconBlock, interfaces.BeaconState, error) {
	if s.cfg.FinalizedFetcher == nil {
		return nil, nil, errors.Wrap(ErrCheckpointSyncFailed, "no checkpoint sync client configured")
	}
	blk, st, err := s.cfg.FinalizedFetcher.FetchFinalized(ctx, client, url)
	if err != nil {
		return nil, nil, errors.Wrap(ErrCheckpointSyncFailed, err.Error())
	}
	return blk, st, nil
}
