package kv

import (
	"context"
	"testing"

	types "github.com/prysmaticlabs/eth2-types"

	"github.com/emberchain/ember/beacon-chain/forkchoice"
	"github.com/emberchain/ember/shared/testutil/assert"
	"github.com/emberchain/ember/shared/testutil/require"
)

func TestAppend_WritesBlocksAndIndices(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	links := testChain(t, [32]byte{}, 33, 34)
	slots, err := db.Append(ctx, nil, reversed(links), nil)
	require.NoError(t, err)
	assert.DeepEqual(t, []types.Slot{33, 34}, slots.Finalized)
	assert.Equal(t, 0, len(slots.Unfinalized))

	for _, link := range links {
		has, err := db.ContainsFinalizedBlock(ctx, link.BlockRoot)
		require.NoError(t, err)
		assert.Equal(t, true, has)

		root, ok, err := db.BlockRootBySlot(ctx, link.Slot())
		require.NoError(t, err)
		require.Equal(t, true, ok)
		assert.Equal(t, link.BlockRoot, root)

		slot, ok, err := db.SlotByStateRoot(ctx, link.Block.StateRoot())
		require.NoError(t, err)
		require.Equal(t, true, ok)
		assert.Equal(t, link.Slot(), slot)
	}

	count, err := db.FinalizedBlockCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAppend_UnfinalizedBlocks(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	valid := testChainLink(t, 65, [32]byte{})
	invalid := testChainLink(t, 66, valid.BlockRoot)
	invalid.Valid = false

	slots, err := db.Append(ctx, []*forkchoice.ChainLink{valid, invalid}, nil, nil)
	require.NoError(t, err)
	assert.DeepEqual(t, []types.Slot{65}, slots.Unfinalized)

	has, err := db.ContainsUnfinalizedBlock(ctx, valid.BlockRoot)
	require.NoError(t, err)
	assert.Equal(t, true, has)

	// Invalid unfinalized links are skipped entirely.
	has, err = db.ContainsUnfinalizedBlock(ctx, invalid.BlockRoot)
	require.NoError(t, err)
	assert.Equal(t, false, has)

	_, ok, err := db.BlockRootBySlot(ctx, 66)
	require.NoError(t, err)
	assert.Equal(t, false, ok)
}

// With finalized links at epoch boundaries 32 through 128 and an archival
// interval of 4 epochs, exactly one archival snapshot lands at slot 128 and
// the checkpoint pointer pair references the first epoch-start link at slot 32.
func TestAppend_CheckpointAndArchivalPolicy(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	links := testChain(t, [32]byte{}, 32, 64, 96, 128)
	_, err := db.Append(ctx, nil, reversed(links), nil)
	require.NoError(t, err)

	// The archival snapshot exists for exactly the link at slot 128; epoch 4
	// is the first multiple of 4 above 0 in the chain.
	for _, link := range links {
		st, err := db.getState(stateByBlockRootKey(link.BlockRoot))
		require.NoError(t, err)
		if link.Slot() == 128 {
			require.NotNil(t, st, "expected archival state at slot 128")
			assert.Equal(t, types.Slot(128), st.Slot())
		} else if st != nil {
			t.Errorf("unexpected archival state at slot %d", link.Slot())
		}
	}

	checkpoint, err := db.loadStateCheckpoint()
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	assert.Equal(t, links[0].BlockRoot, checkpoint.blockRoot)
	assert.Equal(t, types.Slot(32), checkpoint.state.Slot())

	checkpointBlock, err := db.loadBlockCheckpoint()
	require.NoError(t, err)
	require.NotNil(t, checkpointBlock)
	computed, err := checkpointBlock.HashTreeRoot()
	require.NoError(t, err)
	assert.Equal(t, checkpoint.blockRoot, computed)
}

// The head slot recorded by the checkpoint pointer never decreases across
// successive Append calls.
func TestAppend_CheckpointStateSlotMonotone(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, ok, err := db.CheckpointStateSlot(ctx)
	require.NoError(t, err)
	assert.Equal(t, false, ok)

	first := testChain(t, [32]byte{}, 32, 40)
	_, err = db.Append(ctx, nil, reversed(first), nil)
	require.NoError(t, err)

	headSlot, ok, err := db.CheckpointStateSlot(ctx)
	require.NoError(t, err)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Slot(32), headSlot)

	second := testChain(t, first[len(first)-1].BlockRoot, 64)
	_, err = db.Append(ctx, nil, reversed(second), nil)
	require.NoError(t, err)

	nextHeadSlot, ok, err := db.CheckpointStateSlot(ctx)
	require.NoError(t, err)
	require.Equal(t, true, ok)
	assert.Equal(t, true, nextHeadSlot >= headSlot, "head slot went backwards")
	assert.Equal(t, types.Slot(64), nextHeadSlot)
}

// Pruning mode suppresses blocks, slot indices and archival snapshots but
// still maintains the checkpoint pointer.
func TestAppend_PruningMode(t *testing.T) {
	db := setupDB(t)
	db.cfg.PruneStorage = true
	ctx := context.Background()

	links := testChain(t, [32]byte{}, 128)
	slots, err := db.Append(ctx, nil, reversed(links), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, len(slots.Finalized))

	has, err := db.ContainsFinalizedBlock(ctx, links[0].BlockRoot)
	require.NoError(t, err)
	assert.Equal(t, false, has)

	_, ok, err := db.BlockRootBySlot(ctx, 128)
	require.NoError(t, err)
	assert.Equal(t, false, ok)

	st, err := db.getState(stateByBlockRootKey(links[0].BlockRoot))
	require.NoError(t, err)
	if st != nil {
		t.Error("archival state written in pruning mode")
	}

	headSlot, ok, err := db.CheckpointStateSlot(ctx)
	require.NoError(t, err)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Slot(128), headSlot)
}

func TestAppend_MixedUnfinalizedAndFinalized(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	finalized := testChain(t, [32]byte{}, 32, 33)
	unfinalized := testChain(t, finalized[len(finalized)-1].BlockRoot, 34, 35)

	slots, err := db.Append(ctx, unfinalized, reversed(finalized), nil)
	require.NoError(t, err)
	assert.DeepEqual(t, []types.Slot{34, 35}, slots.Unfinalized)
	assert.DeepEqual(t, []types.Slot{32, 33}, slots.Finalized)

	// The head slot is the slot of the first link presented, which leads the
	// unfinalized half.
	headSlot, ok, err := db.CheckpointStateSlot(ctx)
	require.NoError(t, err)
	require.Equal(t, true, ok)
	assert.Equal(t, types.Slot(34), headSlot)
}
