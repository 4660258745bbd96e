package kv

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	types "github.com/prysmaticlabs/eth2-types"

	"github.com/emberchain/ember/shared/bytesutil"
)

// The storage schema is a single flat keyspace. Each record family owns a
// short textual prefix followed by a deterministic fixed-width encoding of
// its payload, so that lexicographic key order matches the natural order of
// the payload fields and range scans stay within one family.
//
//  "b"     + hex(root)                      -> finalized block
//  "b_nf"  + hex(root)                      -> unfinalized block
//  "r"     + dec20(slot)                    -> block root of the canonical chain
//  "s"     + hex(root)                      -> state snapshot by block root
//  "t"     + hex(root)                      -> slot by state root
//  "o"     + hex(root) + dec(index)         -> blob sidecar
//  "i"     + dec20(slot) + hex(root) + dec(index) -> blob identifier
//  "cstate2"                                -> latest state checkpoint
//  "cblock"                                 -> block matching the state checkpoint
//
// dec20 is zero-padded 20-digit decimal, wide enough for any uint64, so
// that lexicographic order equals numeric order. The prefix assignment is
// part of the on-disk format and must not change.
const (
	finalizedBlockPrefix   = "b"
	unfinalizedBlockPrefix = "b_nf"
	blockRootBySlotPrefix  = "r"
	stateByBlockRootPrefix = "s"
	slotByStateRootPrefix  = "t"
	blobSidecarPrefix      = "o"
	slotBlobPrefix         = "i"

	rootHexLength = 64
	slotDecLength = 20
)

var (
	// stateCheckpointKey was renamed from "cstate" for compatibility with old
	// schema versions. The retired literal must not be reused.
	stateCheckpointKey = []byte("cstate2")
	blockCheckpointKey = []byte("cblock")
)

func finalizedBlockKey(root [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", finalizedBlockPrefix, root))
}

func unfinalizedBlockKey(root [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", unfinalizedBlockPrefix, root))
}

func blockRootBySlotKey(slot types.Slot) []byte {
	return []byte(fmt.Sprintf("%s%020d", blockRootBySlotPrefix, uint64(slot)))
}

func stateByBlockRootKey(root [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", stateByBlockRootPrefix, root))
}

func slotByStateRootKey(root [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", slotByStateRootPrefix, root))
}

func blobSidecarKey(root [32]byte, index uint64) []byte {
	return []byte(fmt.Sprintf("%s%x%d", blobSidecarPrefix, root, index))
}

func slotBlobKey(slot types.Slot, root [32]byte, index uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d%x%d", slotBlobPrefix, uint64(slot), root, index))
}

// slotBlobPrefixAt is the bare slot-ordered blob prefix with no root or
// index suffix. It sorts after every blob key of preceding slots and before
// every blob key at the slot itself.
func slotBlobPrefixAt(slot types.Slot) string {
	return fmt.Sprintf("%s%020d", slotBlobPrefix, uint64(slot))
}

// hasFinalizedBlockPrefix must reject unfinalized keys: "b" is a strict
// prefix of "b_nf". A finalized key's second byte is always a lowercase hex
// digit, never '_'.
func hasFinalizedBlockPrefix(key []byte) bool {
	return bytes.HasPrefix(key, []byte(finalizedBlockPrefix)) &&
		!bytes.HasPrefix(key, []byte(unfinalizedBlockPrefix))
}

func hasUnfinalizedBlockPrefix(key []byte) bool {
	return bytes.HasPrefix(key, []byte(unfinalizedBlockPrefix))
}

func hasBlockRootBySlotPrefix(key []byte) bool {
	return bytes.HasPrefix(key, []byte(blockRootBySlotPrefix))
}

func hasSlotBlobPrefix(key []byte) bool {
	return bytes.HasPrefix(key, []byte(slotBlobPrefix))
}

func decodeFinalizedBlockKey(key []byte) ([32]byte, error) {
	if !hasFinalizedBlockPrefix(key) {
		return [32]byte{}, errors.Wrapf(ErrIncorrectPrefix, "%q", key)
	}
	return decodeRootPayload(key, key[len(finalizedBlockPrefix):])
}

func decodeUnfinalizedBlockKey(key []byte) ([32]byte, error) {
	if !hasUnfinalizedBlockPrefix(key) {
		return [32]byte{}, errors.Wrapf(ErrIncorrectPrefix, "%q", key)
	}
	return decodeRootPayload(key, key[len(unfinalizedBlockPrefix):])
}

func decodeStateByBlockRootKey(key []byte) ([32]byte, error) {
	if !bytes.HasPrefix(key, []byte(stateByBlockRootPrefix)) {
		return [32]byte{}, errors.Wrapf(ErrIncorrectPrefix, "%q", key)
	}
	return decodeRootPayload(key, key[len(stateByBlockRootPrefix):])
}

func decodeSlotByStateRootKey(key []byte) ([32]byte, error) {
	if !bytes.HasPrefix(key, []byte(slotByStateRootPrefix)) {
		return [32]byte{}, errors.Wrapf(ErrIncorrectPrefix, "%q", key)
	}
	return decodeRootPayload(key, key[len(slotByStateRootPrefix):])
}

func decodeBlockRootBySlotKey(key []byte) (types.Slot, error) {
	if !hasBlockRootBySlotPrefix(key) {
		return 0, errors.Wrapf(ErrIncorrectPrefix, "%q", key)
	}
	return decodeSlotPayload(key, key[len(blockRootBySlotPrefix):])
}

func decodeBlobSidecarKey(key []byte) ([32]byte, uint64, error) {
	if !bytes.HasPrefix(key, []byte(blobSidecarPrefix)) {
		return [32]byte{}, 0, errors.Wrapf(ErrIncorrectPrefix, "%q", key)
	}
	payload := key[len(blobSidecarPrefix):]
	if len(payload) <= rootHexLength {
		return [32]byte{}, 0, errors.Wrapf(ErrIncorrectPrefix, "%q", key)
	}
	root, err := decodeRootPayload(key, payload[:rootHexLength])
	if err != nil {
		return [32]byte{}, 0, err
	}
	index, err := strconv.ParseUint(string(payload[rootHexLength:]), 10, 64)
	if err != nil {
		return [32]byte{}, 0, errors.Wrapf(ErrIncorrectPrefix, "%q", key)
	}
	return root, index, nil
}

func decodeSlotBlobKey(key []byte) (types.Slot, [32]byte, uint64, error) {
	if !hasSlotBlobPrefix(key) {
		return 0, [32]byte{}, 0, errors.Wrapf(ErrIncorrectPrefix, "%q", key)
	}
	payload := key[len(slotBlobPrefix):]
	if len(payload) <= slotDecLength+rootHexLength {
		return 0, [32]byte{}, 0, errors.Wrapf(ErrIncorrectPrefix, "%q", key)
	}
	slot, err := decodeSlotPayload(key, payload[:slotDecLength])
	if err != nil {
		return 0, [32]byte{}, 0, err
	}
	root, err := decodeRootPayload(key, payload[slotDecLength:slotDecLength+rootHexLength])
	if err != nil {
		return 0, [32]byte{}, 0, err
	}
	index, err := strconv.ParseUint(string(payload[slotDecLength+rootHexLength:]), 10, 64)
	if err != nil {
		return 0, [32]byte{}, 0, errors.Wrapf(ErrIncorrectPrefix, "%q", key)
	}
	return slot, root, index, nil
}

func decodeRootPayload(key, payload []byte) ([32]byte, error) {
	if len(payload) != rootHexLength {
		return [32]byte{}, errors.Wrapf(ErrIncorrectPrefix, "%q", key)
	}
	root, err := hex.DecodeString(string(payload))
	if err != nil {
		return [32]byte{}, errors.Wrapf(ErrIncorrectPrefix, "%q", key)
	}
	return bytesutil.ToBytes32(root), nil
}

func decodeSlotPayload(key, payload []byte) (types.Slot, error) {
	if len(payload) != slotDecLength {
		return 0, errors.Wrapf(ErrIncorrectPrefix, "%q", key)
	}
	slot, err := strconv.ParseUint(string(payload), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrIncorrectPrefix, "%q", key)
	}
	return types.Slot(slot), nil
}
