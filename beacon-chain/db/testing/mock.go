// Package testing includes useful mocks of consensus payloads and storage
// collaborators for storage layer unit tests.
package testing

import (
	"context"
	"encoding/binary"
	"net/http"
	"sort"

	"github.com/pkg/errors"
	types "github.com/prysmaticlabs/eth2-types"

	"github.com/emberchain/ember/beacon-chain/forkchoice"
	"github.com/emberchain/ember/shared/bytesutil"
	"github.com/emberchain/ember/shared/hashutil"
	"github.com/emberchain/ember/shared/interfaces"
)

const (
	blockEncodedSize   = 80
	sidecarEncodedSize = 56
)

// SignedBeaconBlock is a mock implementation of interfaces.SignedBeaconBlock
// with a compact deterministic serialization.
type SignedBeaconBlock struct {
	BlockSlot types.Slot
	Parent    [32]byte
	PostState [32]byte
	BodyNonce uint64
}

// Slot of the block.
func (b *SignedBeaconBlock) Slot() types.Slot { return b.BlockSlot }

// ParentRoot of the block.
func (b *SignedBeaconBlock) ParentRoot() [32]byte { return b.Parent }

// StateRoot of the block.
func (b *SignedBeaconBlock) StateRoot() [32]byte { return b.PostState }

// IsNil reports whether the block is nil.
func (b *SignedBeaconBlock) IsNil() bool { return b == nil }

// MarshalSSZ encodes the block as slot | parent root | state root | nonce.
func (b *SignedBeaconBlock) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 0, blockEncodedSize)
	buf = append(buf, bytesutil.Bytes8(uint64(b.BlockSlot))...)
	buf = append(buf, b.Parent[:]...)
	buf = append(buf, b.PostState[:]...)
	buf = append(buf, bytesutil.Bytes8(b.BodyNonce)...)
	return buf, nil
}

// HashTreeRoot of the block's serialization.
func (b *SignedBeaconBlock) HashTreeRoot() ([32]byte, error) {
	enc, err := b.MarshalSSZ()
	if err != nil {
		return [32]byte{}, err
	}
	return hashutil.Hash(enc), nil
}

// BeaconState is a mock implementation of interfaces.BeaconState. Applied
// block roots accumulate in the state so that distinct replay histories
// produce distinct roots.
type BeaconState struct {
	StateSlot    types.Slot
	Seed         [32]byte
	AppliedRoots [][32]byte
	BlockRoots   map[types.Slot][32]byte

	cachedRoot    [32]byte
	hasCachedRoot bool
}

// Slot of the state.
func (s *BeaconState) Slot() types.Slot { return s.StateSlot }

// IsNil reports whether the state is nil.
func (s *BeaconState) IsNil() bool { return s == nil }

// SetCachedRoot seeds the memoized hash tree root.
func (s *BeaconState) SetCachedRoot(root [32]byte) {
	s.cachedRoot = root
	s.hasCachedRoot = true
}

// ClearCachedRoot drops the memoized root after a mutation.
func (s *BeaconState) ClearCachedRoot() {
	s.cachedRoot = [32]byte{}
	s.hasCachedRoot = false
}

// BlockRootAtSlot returns the block root recorded for the slot.
func (s *BeaconState) BlockRootAtSlot(slot types.Slot) ([32]byte, error) {
	root, ok := s.BlockRoots[slot]
	if !ok {
		return [32]byte{}, errors.Errorf("no block root recorded at slot %d", slot)
	}
	return root, nil
}

// Copy returns a deep copy of the state.
func (s *BeaconState) Copy() interfaces.BeaconState {
	copied := &BeaconState{
		StateSlot:     s.StateSlot,
		Seed:          s.Seed,
		cachedRoot:    s.cachedRoot,
		hasCachedRoot: s.hasCachedRoot,
	}
	copied.AppliedRoots = append(copied.AppliedRoots, s.AppliedRoots...)
	if s.BlockRoots != nil {
		copied.BlockRoots = make(map[types.Slot][32]byte, len(s.BlockRoots))
		for slot, root := range s.BlockRoots {
			copied.BlockRoots[slot] = root
		}
	}
	return copied
}

// MarshalSSZ encodes the state as slot | seed | applied roots | block roots.
func (s *BeaconState) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 0, 48+len(s.AppliedRoots)*32+len(s.BlockRoots)*40)
	buf = append(buf, bytesutil.Bytes8(uint64(s.StateSlot))...)
	buf = append(buf, s.Seed[:]...)
	buf = append(buf, bytesutil.Bytes8(uint64(len(s.AppliedRoots)))...)
	for _, root := range s.AppliedRoots {
		buf = append(buf, root[:]...)
	}
	slots := make([]types.Slot, 0, len(s.BlockRoots))
	for slot := range s.BlockRoots {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	buf = append(buf, bytesutil.Bytes8(uint64(len(slots)))...)
	for _, slot := range slots {
		root := s.BlockRoots[slot]
		buf = append(buf, bytesutil.Bytes8(uint64(slot))...)
		buf = append(buf, root[:]...)
	}
	return buf, nil
}

// HashTreeRoot returns the memoized root when one is set, otherwise the
// hash of the state's serialization.
func (s *BeaconState) HashTreeRoot() ([32]byte, error) {
	if s.hasCachedRoot {
		return s.cachedRoot, nil
	}
	enc, err := s.MarshalSSZ()
	if err != nil {
		return [32]byte{}, err
	}
	return hashutil.Hash(enc), nil
}

// BlobSidecar is a mock implementation of interfaces.BlobSidecar.
type BlobSidecar struct {
	SidecarSlot types.Slot
	Root        [32]byte
	Idx         uint64
	Nonce       uint64
}

// Slot of the sidecar's carrying block.
func (b *BlobSidecar) Slot() types.Slot { return b.SidecarSlot }

// BlockRoot of the sidecar's carrying block.
func (b *BlobSidecar) BlockRoot() [32]byte { return b.Root }

// Index of the sidecar within its block.
func (b *BlobSidecar) Index() uint64 { return b.Idx }

// IsNil reports whether the sidecar is nil.
func (b *BlobSidecar) IsNil() bool { return b == nil }

// MarshalSSZ encodes the sidecar as slot | block root | index | nonce.
func (b *BlobSidecar) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 0, sidecarEncodedSize)
	buf = append(buf, bytesutil.Bytes8(uint64(b.SidecarSlot))...)
	buf = append(buf, b.Root[:]...)
	buf = append(buf, bytesutil.Bytes8(b.Idx)...)
	buf = append(buf, bytesutil.Bytes8(b.Nonce)...)
	return buf, nil
}

// Codec decodes the mock payload encodings.
type Codec struct{}

// UnmarshalBlock decodes a mock block.
func (Codec) UnmarshalBlock(enc []byte) (interfaces.SignedBeaconBlock, error) {
	if len(enc) != blockEncodedSize {
		return nil, errors.Errorf("invalid block encoding of %d bytes", len(enc))
	}
	return &SignedBeaconBlock{
		BlockSlot: types.Slot(binary.LittleEndian.Uint64(enc[0:8])),
		Parent:    bytesutil.ToBytes32(enc[8:40]),
		PostState: bytesutil.ToBytes32(enc[40:72]),
		BodyNonce: binary.LittleEndian.Uint64(enc[72:80]),
	}, nil
}

// UnmarshalState decodes a mock state.
func (Codec) UnmarshalState(enc []byte) (interfaces.BeaconState, error) {
	if len(enc) < 48 {
		return nil, errors.Errorf("invalid state encoding of %d bytes", len(enc))
	}
	st := &BeaconState{
		StateSlot: types.Slot(binary.LittleEndian.Uint64(enc[0:8])),
		Seed:      bytesutil.ToBytes32(enc[8:40]),
	}
	offset := 40
	numApplied := binary.LittleEndian.Uint64(enc[offset : offset+8])
	offset += 8
	for i := uint64(0); i < numApplied; i++ {
		if len(enc) < offset+32 {
			return nil, errors.New("truncated state encoding")
		}
		st.AppliedRoots = append(st.AppliedRoots, bytesutil.ToBytes32(enc[offset:offset+32]))
		offset += 32
	}
	if len(enc) < offset+8 {
		return nil, errors.New("truncated state encoding")
	}
	numRoots := binary.LittleEndian.Uint64(enc[offset : offset+8])
	offset += 8
	if numRoots > 0 {
		st.BlockRoots = make(map[types.Slot][32]byte, numRoots)
	}
	for i := uint64(0); i < numRoots; i++ {
		if len(enc) < offset+40 {
			return nil, errors.New("truncated state encoding")
		}
		slot := types.Slot(binary.LittleEndian.Uint64(enc[offset : offset+8]))
		st.BlockRoots[slot] = bytesutil.ToBytes32(enc[offset+8 : offset+40])
		offset += 40
	}
	return st, nil
}

// UnmarshalBlobSidecar decodes a mock blob sidecar.
func (Codec) UnmarshalBlobSidecar(enc []byte) (interfaces.BlobSidecar, error) {
	if len(enc) != sidecarEncodedSize {
		return nil, errors.Errorf("invalid blob sidecar encoding of %d bytes", len(enc))
	}
	return &BlobSidecar{
		SidecarSlot: types.Slot(binary.LittleEndian.Uint64(enc[0:8])),
		Root:        bytesutil.ToBytes32(enc[8:40]),
		Idx:         binary.LittleEndian.Uint64(enc[40:48]),
		Nonce:       binary.LittleEndian.Uint64(enc[48:56]),
	}, nil
}

// Transitioner is a mock state transition: applying a block bumps the state
// to the block's slot and records the block root; slot processing bumps the
// slot alone. Mutations operate on a copy and drop the memoized root.
type Transitioner struct{}

// ExecuteStateTransition applies a trusted block on top of the state.
func (Transitioner) ExecuteStateTransition(_ context.Context, st interfaces.BeaconState, blk interfaces.SignedBeaconBlock) (interfaces.BeaconState, error) {
	if blk.Slot() < st.Slot() {
		return nil, errors.Errorf("block slot %d below state slot %d", blk.Slot(), st.Slot())
	}
	root, err := blk.HashTreeRoot()
	if err != nil {
		return nil, err
	}
	copied, ok := st.Copy().(*BeaconState)
	if !ok {
		return nil, errors.New("transitioner requires a mock state")
	}
	copied.StateSlot = blk.Slot()
	copied.AppliedRoots = append(copied.AppliedRoots, root)
	copied.ClearCachedRoot()
	return copied, nil
}

// ProcessSlots advances the state through empty slots.
func (Transitioner) ProcessSlots(_ context.Context, st interfaces.BeaconState, slot types.Slot) (interfaces.BeaconState, error) {
	if slot < st.Slot() {
		return nil, errors.Errorf("target slot %d below state slot %d", slot, st.Slot())
	}
	copied, ok := st.Copy().(*BeaconState)
	if !ok {
		return nil, errors.New("transitioner requires a mock state")
	}
	copied.StateSlot = slot
	copied.ClearCachedRoot()
	return copied, nil
}

// GenesisProvider serves a fixed genesis block and state.
type GenesisProvider struct {
	Block interfaces.SignedBeaconBlock
	State interfaces.BeaconState
}

// GenesisBlock returns the genesis block.
func (g *GenesisProvider) GenesisBlock() interfaces.SignedBeaconBlock { return g.Block }

// GenesisState returns the genesis state.
func (g *GenesisProvider) GenesisState() interfaces.BeaconState { return g.State }

// FinalizedFetcher serves a fixed remote checkpoint, or an error.
type FinalizedFetcher struct {
	Block interfaces.SignedBeaconBlock
	State interfaces.BeaconState
	Err   error

	// Calls counts FetchFinalized invocations.
	Calls int
}

// FetchFinalized returns the configured checkpoint.
func (f *FinalizedFetcher) FetchFinalized(_ context.Context, _ *http.Client, _ string) (interfaces.SignedBeaconBlock, interfaces.BeaconState, error) {
	f.Calls++
	if f.Err != nil {
		return nil, nil, f.Err
	}
	return f.Block, f.State, nil
}

// HeadReader is a mock fork-choice store view over a fixed set of links.
type HeadReader struct {
	Links []*forkchoice.ChainLink
}

// ChainLinkBeforeOrAt returns the link with the greatest slot not exceeding
// the given slot.
func (h *HeadReader) ChainLinkBeforeOrAt(slot types.Slot) *forkchoice.ChainLink {
	var best *forkchoice.ChainLink
	for _, link := range h.Links {
		if link.Slot() <= slot && (best == nil || link.Slot() > best.Slot()) {
			best = link
		}
	}
	return best
}
