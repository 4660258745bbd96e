package kv

import (
	"context"
	"testing"

	types "github.com/prysmaticlabs/eth2-types"

	dbtest "github.com/emberchain/ember/beacon-chain/db/testing"
	"github.com/emberchain/ember/beacon-chain/forkchoice"
	"github.com/emberchain/ember/shared/hashutil"
	"github.com/emberchain/ember/shared/testutil/assert"
	"github.com/emberchain/ember/shared/testutil/require"
)

func TestFinalizedBlockByRoot_RoundTripAndCache(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, links := anchorAndFinalize(t, db, 32)

	blk, err := db.FinalizedBlockByRoot(ctx, links[0].BlockRoot)
	require.NoError(t, err)
	require.NotNil(t, blk)
	assert.Equal(t, types.Slot(32), blk.Slot())
	assert.Equal(t, links[0].Block.StateRoot(), blk.StateRoot())

	// A second read may come from the cache and must agree.
	cached, err := db.FinalizedBlockByRoot(ctx, links[0].BlockRoot)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, blk.Slot(), cached.Slot())

	missing, err := db.FinalizedBlockByRoot(ctx, hashutil.Hash([]byte("missing")))
	require.NoError(t, err)
	if missing != nil {
		t.Fatal("expected no block for an unknown root")
	}
}

// BlockBySlot consults the finalized store only; an unfinalized block at the
// slot is not returned.
func TestBlockBySlot_FinalizedOnly(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, finalized := anchorAndFinalize(t, db, 32)
	unfinalized := testChain(t, finalized[0].BlockRoot, 33)
	_, err := db.Append(ctx, unfinalized, nil, nil)
	require.NoError(t, err)

	blk, root, err := db.BlockBySlot(ctx, 32)
	require.NoError(t, err)
	require.NotNil(t, blk)
	assert.Equal(t, finalized[0].BlockRoot, root)

	blk, _, err = db.BlockBySlot(ctx, 33)
	require.NoError(t, err)
	if blk != nil {
		t.Fatal("expected no finalized block at an unfinalized slot")
	}
}

func TestBlockRootBySlotWithStore(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, links := anchorAndFinalize(t, db, 32)

	storeLink := testChainLink(t, 40, links[0].BlockRoot)
	headReader := &dbtest.HeadReader{Links: []*forkchoice.ChainLink{storeLink}}

	// Exact in-memory match wins.
	root, ok, err := db.BlockRootBySlotWithStore(ctx, headReader, 40)
	require.NoError(t, err)
	require.Equal(t, true, ok)
	assert.Equal(t, storeLink.BlockRoot, root)

	// A near-miss in the store falls back to storage.
	root, ok, err = db.BlockRootBySlotWithStore(ctx, headReader, 41)
	require.NoError(t, err)
	assert.Equal(t, false, ok)

	root, ok, err = db.BlockRootBySlotWithStore(ctx, nil, 32)
	require.NoError(t, err)
	require.Equal(t, true, ok)
	assert.Equal(t, links[0].BlockRoot, root)
}

// Unfinalized keys sort in the middle of the finalized family ("b_nf" falls
// between "b9..." and "ba..."); counting must skip them rather than stop.
func TestFinalizedBlockCount_IgnoresUnfinalized(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, finalized := anchorAndFinalize(t, db, 32, 33, 34, 35)
	unfinalized := testChain(t, finalized[len(finalized)-1].BlockRoot, 36, 37, 38)
	_, err := db.Append(ctx, unfinalized, nil, nil)
	require.NoError(t, err)

	count, err := db.FinalizedBlockCount(ctx)
	require.NoError(t, err)
	// Genesis plus the four finalized links; none of the unfinalized blocks.
	assert.Equal(t, 5, count)
}

func TestGenesisBlockRoot(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, err := db.GenesisBlockRoot(ctx, nil)
	require.ErrorIs(t, err, ErrGenesisBlockRootNotFound)

	genesis := testGenesis(t)
	_, _, err = db.Load(ctx, nil, AnchorStrategy(genesis.Block, genesis.State))
	require.NoError(t, err)

	expected, err := genesis.Block.HashTreeRoot()
	require.NoError(t, err)
	root, err := db.GenesisBlockRoot(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, expected, root)
}

func TestDependentRoot(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	genesis := testGenesis(t)
	_, _, err := db.Load(ctx, nil, AnchorStrategy(genesis.Block, genesis.State))
	require.NoError(t, err)
	genesisRoot, err := genesis.Block.HashTreeRoot()
	require.NoError(t, err)

	rootAt31 := hashutil.Hash([]byte("root at 31"))
	st := &dbtest.BeaconState{
		StateSlot:  64,
		BlockRoots: map[types.Slot][32]byte{31: rootAt31},
	}

	// Epoch 0 depends on the genesis block root.
	root, err := db.DependentRoot(ctx, nil, st, 0)
	require.NoError(t, err)
	assert.Equal(t, genesisRoot, root)

	// Later epochs depend on the root at the last slot of the prior epoch.
	root, err = db.DependentRoot(ctx, nil, st, 1)
	require.NoError(t, err)
	assert.Equal(t, rootAt31, root)

	// Failures carry the dependent-root error kind.
	_, err = db.DependentRoot(ctx, nil, st, 2)
	require.ErrorIs(t, err, ErrDependentRootLookupFailed)
}
