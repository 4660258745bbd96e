package kv

import (
	"testing"

	types "github.com/prysmaticlabs/eth2-types"

	"github.com/emberchain/ember/beacon-chain/database"
	dbtest "github.com/emberchain/ember/beacon-chain/db/testing"
	"github.com/emberchain/ember/beacon-chain/forkchoice"
	"github.com/emberchain/ember/shared/hashutil"
	"github.com/emberchain/ember/shared/interfaces"
	"github.com/emberchain/ember/shared/params"
	"github.com/emberchain/ember/shared/testutil/require"
)

// setupDB instantiates and returns a storage core backed by an in-memory
// database, with the archival interval used throughout the tests.
func setupDB(t testing.TB) *Store {
	store, err := NewStore(database.NewMemoryStore(), &Config{
		ChainConfig:           params.MainnetConfig(),
		Codec:                 dbtest.Codec{},
		Transitioner:          dbtest.Transitioner{},
		ArchivalEpochInterval: 4,
	})
	require.NoError(t, err)
	return store
}

// testChainLink builds a finalizable chain link at the given slot whose
// block root, state root and body are all derived deterministically.
func testChainLink(t testing.TB, slot types.Slot, parentRoot [32]byte) *forkchoice.ChainLink {
	st := &dbtest.BeaconState{
		StateSlot: slot,
		Seed:      hashutil.Hash(append([]byte("state"), byte(slot), byte(slot>>8))),
	}
	stateRoot, err := st.HashTreeRoot()
	require.NoError(t, err)
	blk := &dbtest.SignedBeaconBlock{
		BlockSlot: slot,
		Parent:    parentRoot,
		PostState: stateRoot,
		BodyNonce: uint64(slot),
	}
	blockRoot, err := blk.HashTreeRoot()
	require.NoError(t, err)
	return &forkchoice.ChainLink{
		BlockRoot: blockRoot,
		Block:     blk,
		StateGetter: func(_ forkchoice.HeadReader) interfaces.BeaconState {
			return st
		},
		Valid: true,
	}
}

// testChain builds a parent-linked chain of links at the given slots.
func testChain(t testing.TB, parentRoot [32]byte, slots ...types.Slot) []*forkchoice.ChainLink {
	links := make([]*forkchoice.ChainLink, 0, len(slots))
	for _, slot := range slots {
		link := testChainLink(t, slot, parentRoot)
		parentRoot = link.BlockRoot
		links = append(links, link)
	}
	return links
}

// reversed returns the links in reverse order, the order finalization
// reveals them in.
func reversed(links []*forkchoice.ChainLink) []*forkchoice.ChainLink {
	out := make([]*forkchoice.ChainLink, len(links))
	for i, link := range links {
		out[len(links)-1-i] = link
	}
	return out
}

func TestNewStore_ValidatesConfig(t *testing.T) {
	_, err := NewStore(database.NewMemoryStore(), &Config{
		Codec:        dbtest.Codec{},
		Transitioner: dbtest.Transitioner{},
	})
	require.ErrorContains(t, "archival epoch interval", err)

	_, err = NewStore(database.NewMemoryStore(), &Config{
		Transitioner:          dbtest.Transitioner{},
		ArchivalEpochInterval: 4,
	})
	require.ErrorContains(t, "value codec", err)
}

func TestNewInMemoryStore_DefaultsPolicy(t *testing.T) {
	store, err := NewInMemoryStore(&Config{
		Codec:                 dbtest.Codec{},
		Transitioner:          dbtest.Transitioner{},
		ArchivalEpochInterval: 7,
		PruneStorage:          true,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(DefaultArchivalEpochInterval), store.cfg.ArchivalEpochInterval)
	require.Equal(t, false, store.cfg.PruneStorage)
}
