package kv

import (
	"context"
	"encoding/binary"

	ssz "github.com/ferranbt/fastssz"
	"github.com/pkg/errors"
	types "github.com/prysmaticlabs/eth2-types"
	"go.opencensus.io/trace"

	"github.com/emberchain/ember/shared/bytesutil"
	"github.com/emberchain/ember/shared/interfaces"
)

// stateCheckpoint is the latest-checkpoint pointer: the finalized block root
// at the most recent epoch boundary, the state at that boundary, and the
// greatest slot the store head had reached when the pointer was written.
// Persisted under the reserved "cstate2" key.
type stateCheckpoint struct {
	blockRoot [32]byte
	headSlot  types.Slot
	state     interfaces.BeaconState
}

// stateCheckpointFixedSize is the fixed part of the SSZ container:
// block root (32) + head slot (8) + state offset (4).
const stateCheckpointFixedSize = 44

func (c *stateCheckpoint) MarshalSSZ() ([]byte, error) {
	stateEnc, err := c.state.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, stateCheckpointFixedSize+len(stateEnc))
	copy(buf[0:32], c.blockRoot[:])
	binary.LittleEndian.PutUint64(buf[32:40], uint64(c.headSlot))
	binary.LittleEndian.PutUint32(buf[40:44], stateCheckpointFixedSize)
	copy(buf[stateCheckpointFixedSize:], stateEnc)
	return buf, nil
}

func unmarshalStateCheckpoint(codec ValueCodec, enc []byte) (*stateCheckpoint, error) {
	if len(enc) < stateCheckpointFixedSize {
		return nil, ssz.ErrSize
	}
	if binary.LittleEndian.Uint32(enc[40:44]) != stateCheckpointFixedSize {
		return nil, ssz.ErrOffset
	}
	st, err := codec.UnmarshalState(enc[stateCheckpointFixedSize:])
	if err != nil {
		return nil, errors.Wrap(err, "could not decode checkpoint state")
	}
	return &stateCheckpoint{
		blockRoot: bytesutil.ToBytes32(enc[0:32]),
		headSlot:  types.Slot(binary.LittleEndian.Uint64(enc[32:40])),
		state:     st,
	}, nil
}

func (s *Store) loadStateCheckpoint() (*stateCheckpoint, error) {
	enc, err := s.db.Get(stateCheckpointKey)
	if err != nil || enc == nil {
		return nil, err
	}
	return unmarshalStateCheckpoint(s.cfg.Codec, enc)
}

// The block checkpoint record is transparent: the value is the block's own
// canonical serialization under the reserved "cblock" key.
func (s *Store) loadBlockCheckpoint() (interfaces.SignedBeaconBlock, error) {
	return s.getBlock(blockCheckpointKey)
}

// CheckpointStateSlot returns the head slot recorded by the latest state
// checkpoint, if one has been written.
func (s *Store) CheckpointStateSlot(ctx context.Context) (types.Slot, bool, error) {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.CheckpointStateSlot")
	defer span.End()

	checkpoint, err := s.loadStateCheckpoint()
	if err != nil {
		return 0, false, err
	}
	if checkpoint == nil {
		return 0, false, nil
	}
	return checkpoint.headSlot, true, nil
}
