package checkpointsync

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	dbtest "github.com/emberchain/ember/beacon-chain/db/testing"
	"github.com/emberchain/ember/shared/hashutil"
	"github.com/emberchain/ember/shared/testutil/assert"
	"github.com/emberchain/ember/shared/testutil/require"
)

func testCheckpoint(t *testing.T) (*dbtest.SignedBeaconBlock, *dbtest.BeaconState) {
	st := &dbtest.BeaconState{StateSlot: 160, Seed: hashutil.Hash([]byte("remote state"))}
	stateRoot, err := st.HashTreeRoot()
	require.NoError(t, err)
	blk := &dbtest.SignedBeaconBlock{
		BlockSlot: 160,
		Parent:    hashutil.Hash([]byte("parent")),
		PostState: stateRoot,
	}
	return blk, st
}

func serveCheckpoint(t *testing.T, blk *dbtest.SignedBeaconBlock, st *dbtest.BeaconState, tamperState bool) *httptest.Server {
	blockRoot, err := blk.HashTreeRoot()
	require.NoError(t, err)
	blockEnc, err := blk.MarshalSSZ()
	require.NoError(t, err)
	stateEnc, err := st.MarshalSSZ()
	require.NoError(t, err)
	if tamperState {
		stateEnc[0]++
	}

	mux := http.NewServeMux()
	mux.HandleFunc(finalityCheckpointsPath, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"data":{"finalized":{"epoch":"5","root":"%#x"}}}`, blockRoot)
	})
	mux.HandleFunc(fmt.Sprintf(blockPathTemplate, blockRoot), func(w http.ResponseWriter, _ *http.Request) {
		_, err := w.Write(blockEnc)
		require.NoError(t, err)
	})
	mux.HandleFunc(fmt.Sprintf(statePathTemplate, blk.StateRoot()), func(w http.ResponseWriter, _ *http.Request) {
		_, err := w.Write(stateEnc)
		require.NoError(t, err)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFetchFinalized(t *testing.T) {
	blk, st := testCheckpoint(t)
	server := serveCheckpoint(t, blk, st, false)

	client := NewClient(dbtest.Codec{})
	gotBlock, gotState, err := client.FetchFinalized(context.Background(), server.Client(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, blk.Slot(), gotBlock.Slot())
	assert.Equal(t, st.Slot(), gotState.Slot())
	assert.Equal(t, blk.StateRoot(), gotBlock.StateRoot())
}

func TestFetchFinalized_RejectsMismatchedState(t *testing.T) {
	blk, st := testCheckpoint(t)
	server := serveCheckpoint(t, blk, st, true)

	client := NewClient(dbtest.Codec{})
	_, _, err := client.FetchFinalized(context.Background(), server.Client(), server.URL)
	require.ErrorContains(t, "does not match block state root", err)
}

func TestFetchFinalized_RemoteDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client := NewClient(dbtest.Codec{})
	_, _, err := client.FetchFinalized(context.Background(), nil, server.URL)
	require.NotNil(t, err)
}
