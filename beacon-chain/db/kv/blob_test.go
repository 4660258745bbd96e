package kv

import (
	"context"
	"testing"

	types "github.com/prysmaticlabs/eth2-types"

	dbtest "github.com/emberchain/ember/beacon-chain/db/testing"
	"github.com/emberchain/ember/shared/hashutil"
	"github.com/emberchain/ember/shared/testutil/assert"
	"github.com/emberchain/ember/shared/testutil/require"
)

func testSidecar(slot types.Slot, index uint64) BlobSidecarWithID {
	root := hashutil.Hash([]byte{byte(slot), byte(slot >> 8), 'b'})
	return BlobSidecarWithID{
		Sidecar: &dbtest.BlobSidecar{
			SidecarSlot: slot,
			Root:        root,
			Idx:         index,
			Nonce:       uint64(slot)<<8 | index,
		},
		ID: BlobIdentifier{BlockRoot: root, Index: index},
	}
}

func TestBlobIdentifier_SSZRoundTrip(t *testing.T) {
	blobID := &BlobIdentifier{BlockRoot: hashutil.Hash([]byte("blob")), Index: 5}
	enc, err := blobID.MarshalSSZ()
	require.NoError(t, err)
	require.Equal(t, blobIdentifierSize, len(enc))

	decoded := &BlobIdentifier{}
	require.NoError(t, decoded.UnmarshalSSZ(enc))
	assert.DeepEqual(t, blobID, decoded)

	require.NotNil(t, decoded.UnmarshalSSZ(enc[:10]), "expected size error")
}

func TestAppendBlobSidecars_DualIndex(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	sidecars := []BlobSidecarWithID{testSidecar(10, 0), testSidecar(10, 1)}
	ids, err := db.AppendBlobSidecars(ctx, sidecars)
	require.NoError(t, err)
	require.Equal(t, 2, len(ids))

	for _, sidecarWithID := range sidecars {
		sidecar, err := db.BlobSidecarByID(ctx, sidecarWithID.ID)
		require.NoError(t, err)
		require.NotNil(t, sidecar)
		assert.Equal(t, sidecarWithID.Sidecar.Slot(), sidecar.Slot())
		assert.Equal(t, sidecarWithID.Sidecar.Index(), sidecar.Index())

		// Every direct entry has its dual in the slot-ordered family.
		has, err := db.db.Has(slotBlobKey(sidecarWithID.Sidecar.Slot(), sidecarWithID.ID.BlockRoot, sidecarWithID.ID.Index))
		require.NoError(t, err)
		assert.Equal(t, true, has)
	}
}

func TestBlobSidecarByID_Missing(t *testing.T) {
	db := setupDB(t)

	sidecar, err := db.BlobSidecarByID(context.Background(), BlobIdentifier{BlockRoot: hashutil.Hash([]byte("none"))})
	require.NoError(t, err)
	if sidecar != nil {
		t.Fatal("expected no sidecar")
	}
}

// Pruning up to slot 11 removes the slot-10 and slot-11 entries in both
// families and leaves slot 12 untouched.
func TestPruneOldBlobSidecars(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	sidecars := []BlobSidecarWithID{
		testSidecar(10, 0),
		testSidecar(10, 1),
		testSidecar(11, 0),
		testSidecar(12, 0),
	}
	_, err := db.AppendBlobSidecars(ctx, sidecars)
	require.NoError(t, err)

	require.NoError(t, db.PruneOldBlobSidecars(ctx, 11))

	for _, sidecarWithID := range sidecars[:3] {
		sidecar, err := db.BlobSidecarByID(ctx, sidecarWithID.ID)
		require.NoError(t, err)
		if sidecar != nil {
			t.Errorf("sidecar at slot %d survived pruning", sidecarWithID.Sidecar.Slot())
		}
		has, err := db.db.Has(slotBlobKey(sidecarWithID.Sidecar.Slot(), sidecarWithID.ID.BlockRoot, sidecarWithID.ID.Index))
		require.NoError(t, err)
		assert.Equal(t, false, has)
	}

	survivor, err := db.BlobSidecarByID(ctx, sidecars[3].ID)
	require.NoError(t, err)
	require.NotNil(t, survivor)
	assert.Equal(t, types.Slot(12), survivor.Slot())
}

// Pruning is idempotent: a second run over the same bound is a no-op and
// leaves no slot-ordered entry at or below it.
func TestPruneOldBlobSidecars_Idempotent(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, err := db.AppendBlobSidecars(ctx, []BlobSidecarWithID{
		testSidecar(5, 0),
		testSidecar(6, 0),
		testSidecar(9, 0),
	})
	require.NoError(t, err)

	require.NoError(t, db.PruneOldBlobSidecars(ctx, 7))
	require.NoError(t, db.PruneOldBlobSidecars(ctx, 7))

	iter, err := db.db.IteratorAscending([]byte(slotBlobPrefixAt(0)))
	require.NoError(t, err)
	defer func() {
		require.NoError(t, iter.Close())
	}()
	for iter.Next() {
		if !hasSlotBlobPrefix(iter.Key()) {
			break
		}
		slot, _, _, err := decodeSlotBlobKey(iter.Key())
		require.NoError(t, err)
		assert.Equal(t, true, slot > 7, "slot %d survived pruning up to 7", slot)
	}
}

// Pruning must never delete keys of a foreign family, even when the scan
// bound brushes against one.
func TestPruneOldBlobSidecars_LeavesOtherFamiliesAlone(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	anchorAndFinalize(t, db, 32)
	_, err := db.AppendBlobSidecars(ctx, []BlobSidecarWithID{testSidecar(33, 0)})
	require.NoError(t, err)

	require.NoError(t, db.PruneOldBlobSidecars(ctx, 40))

	// The slot-root index ("r" family) sorts above "i" and must survive.
	_, ok, err := db.BlockRootBySlot(ctx, 32)
	require.NoError(t, err)
	assert.Equal(t, true, ok)

	count, err := db.FinalizedBlockCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
