package kv

import (
	"github.com/pkg/errors"
	types "github.com/prysmaticlabs/eth2-types"

	"github.com/emberchain/ember/beacon-chain/database"
	"github.com/emberchain/ember/shared/bytesutil"
	"github.com/emberchain/ember/shared/interfaces"
)

// ValueCodec deserializes the consensus payloads the storage layer persists.
// Blocks and states are fork-tagged, so an implementation is constructed
// around the active chain configuration and dispatches on the version in
// effect at the payload's slot. Persisted values are canonical SSZ; the
// codec must not add framing of its own.
type ValueCodec interface {
	UnmarshalBlock(enc []byte) (interfaces.SignedBeaconBlock, error)
	UnmarshalState(enc []byte) (interfaces.BeaconState, error)
	UnmarshalBlobSidecar(enc []byte) (interfaces.BlobSidecar, error)
}

type sszMarshaler interface {
	MarshalSSZ() ([]byte, error)
}

func encode(key []byte, value sszMarshaler) (database.Entry, error) {
	enc, err := value.MarshalSSZ()
	if err != nil {
		return database.Entry{}, errors.Wrap(err, "could not ssz encode value")
	}
	return database.Entry{Key: key, Value: enc}, nil
}

func encodeRoot(key []byte, root [32]byte) database.Entry {
	value := make([]byte, 32)
	copy(value, root[:])
	return database.Entry{Key: key, Value: value}
}

func encodeSlot(key []byte, slot types.Slot) database.Entry {
	return database.Entry{Key: key, Value: bytesutil.Bytes8(uint64(slot))}
}

func decodeRoot(enc []byte) ([32]byte, error) {
	if len(enc) != 32 {
		return [32]byte{}, errors.Errorf("corrupt root value of %d bytes", len(enc))
	}
	return bytesutil.ToBytes32(enc), nil
}

func decodeSlot(enc []byte) (types.Slot, error) {
	if len(enc) != 8 {
		return 0, errors.Errorf("corrupt slot value of %d bytes", len(enc))
	}
	return types.Slot(bytesutil.FromBytes8(enc)), nil
}
