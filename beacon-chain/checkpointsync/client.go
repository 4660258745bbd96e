// Package checkpointsync implements the remote checkpoint sync client: it
// retrieves the latest finalized block and state from a trusted beacon node
// and verifies they belong together before the storage layer anchors on them.
package checkpointsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/emberchain/ember/beacon-chain/db/kv"
	"github.com/emberchain/ember/shared/bytesutil"
	"github.com/emberchain/ember/shared/interfaces"
)

const (
	finalityCheckpointsPath = "/eth/v1/beacon/states/finalized/finality_checkpoints"
	blockPathTemplate       = "/eth/v2/beacon/blocks/%#x"
	statePathTemplate       = "/eth/v2/debug/beacon/states/%#x"

	sszMediaType = "application/octet-stream"
)

// Client fetches finalized checkpoints over the standard beacon node API.
type Client struct {
	codec kv.ValueCodec
}

var _ = kv.FinalizedFetcher(&Client{})

// NewClient constructs a checkpoint sync client decoding payloads with the
// given codec.
func NewClient(codec kv.ValueCodec) *Client {
	return &Client{codec: codec}
}

type checkpointJSON struct {
	Root string `json:"root"`
}

type finalityCheckpointsJSON struct {
	Data struct {
		Finalized checkpointJSON `json:"finalized"`
	} `json:"data"`
}

// FetchFinalized downloads the finalized block and its post-state from the
// remote beacon node and cross-checks the pair: the block must hash to the
// advertised finalized root and the state must hash to the block's state
// root.
func (c *Client) FetchFinalized(ctx context.Context, client *http.Client, url string) (interfaces.SignedBeaconBlock, interfaces.BeaconState, error) {
	if client == nil {
		client = http.DefaultClient
	}

	body, err := c.get(ctx, client, url+finalityCheckpointsPath, "application/json")
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not fetch finality checkpoints")
	}
	checkpoints := &finalityCheckpointsJSON{}
	if err := json.Unmarshal(body, checkpoints); err != nil {
		return nil, nil, errors.Wrap(err, "could not decode finality checkpoints")
	}
	rootBytes, err := hexutil.Decode(checkpoints.Data.Finalized.Root)
	if err != nil {
		return nil, nil, errors.Wrap(err, "malformed finalized checkpoint root")
	}
	finalizedRoot := bytesutil.ToBytes32(rootBytes)

	blockEnc, err := c.get(ctx, client, url+fmt.Sprintf(blockPathTemplate, finalizedRoot), sszMediaType)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not fetch finalized block")
	}
	block, err := c.codec.UnmarshalBlock(blockEnc)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not decode finalized block")
	}
	blockRoot, err := block.HashTreeRoot()
	if err != nil {
		return nil, nil, err
	}
	if blockRoot != finalizedRoot {
		return nil, nil, errors.Errorf("remote block root %#x does not match advertised finalized root %#x", blockRoot, finalizedRoot)
	}

	stateEnc, err := c.get(ctx, client, url+fmt.Sprintf(statePathTemplate, block.StateRoot()), sszMediaType)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not fetch finalized state")
	}
	state, err := c.codec.UnmarshalState(stateEnc)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not decode finalized state")
	}
	stateRoot, err := state.HashTreeRoot()
	if err != nil {
		return nil, nil, err
	}
	if stateRoot != block.StateRoot() {
		return nil, nil, errors.Errorf("remote state root %#x does not match block state root %#x", stateRoot, block.StateRoot())
	}

	return block, state, nil
}

func (c *Client) get(ctx context.Context, client *http.Client, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.WithError(err).Error("Could not close response body")
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("request to %s failed with status %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
