package kv

import (
	"context"
	"encoding/binary"

	ssz "github.com/ferranbt/fastssz"
	types "github.com/prysmaticlabs/eth2-types"
	"go.opencensus.io/trace"

	"github.com/emberchain/ember/beacon-chain/database"
	"github.com/emberchain/ember/shared/bytesutil"
	"github.com/emberchain/ember/shared/interfaces"
	"github.com/emberchain/ember/shared/traceutil"
)

// BlobIdentifier uniquely identifies a blob sidecar by the root of its
// carrying block and its index within that block.
type BlobIdentifier struct {
	BlockRoot [32]byte
	Index     uint64
}

// blobIdentifierSize is the SSZ size of the container: root (32) + index (8).
const blobIdentifierSize = 40

// MarshalSSZ ssz marshals the BlobIdentifier object.
func (b *BlobIdentifier) MarshalSSZ() ([]byte, error) {
	return ssz.MarshalSSZ(b)
}

// MarshalSSZTo ssz marshals the BlobIdentifier object to a target array.
func (b *BlobIdentifier) MarshalSSZTo(buf []byte) ([]byte, error) {
	dst := buf
	dst = append(dst, b.BlockRoot[:]...)
	dst = ssz.MarshalUint64(dst, b.Index)
	return dst, nil
}

// UnmarshalSSZ ssz unmarshals the BlobIdentifier object.
func (b *BlobIdentifier) UnmarshalSSZ(buf []byte) error {
	if len(buf) != blobIdentifierSize {
		return ssz.ErrSize
	}
	b.BlockRoot = bytesutil.ToBytes32(buf[0:32])
	b.Index = binary.LittleEndian.Uint64(buf[32:40])
	return nil
}

// SizeSSZ returns the ssz encoded size in bytes for the BlobIdentifier object.
func (b *BlobIdentifier) SizeSSZ() int {
	return blobIdentifierSize
}

// BlobSidecarWithID pairs a sidecar with the identifier it was verified
// against.
type BlobSidecarWithID struct {
	Sidecar interfaces.BlobSidecar
	ID      BlobIdentifier
}

// AppendBlobSidecars writes the given sidecars under both blob indices in
// one atomic batch: the direct (block root, index) lookup and the
// slot-ordered index that pruning scans. Returns the identifiers persisted.
func (s *Store) AppendBlobSidecars(ctx context.Context, sidecars []BlobSidecarWithID) ([]BlobIdentifier, error) {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.AppendBlobSidecars")
	defer span.End()

	batch := make([]database.Entry, 0, 2*len(sidecars))
	persisted := make([]BlobIdentifier, 0, len(sidecars))

	for _, sidecarWithID := range sidecars {
		blobID := sidecarWithID.ID
		slot := sidecarWithID.Sidecar.Slot()

		sidecarEntry, err := encode(blobSidecarKey(blobID.BlockRoot, blobID.Index), sidecarWithID.Sidecar)
		if err != nil {
			traceutil.AnnotateError(span, err)
			return nil, err
		}
		batch = append(batch, sidecarEntry)

		idEntry, err := encode(slotBlobKey(slot, blobID.BlockRoot, blobID.Index), &blobID)
		if err != nil {
			traceutil.AnnotateError(span, err)
			return nil, err
		}
		batch = append(batch, idEntry)

		persisted = append(persisted, blobID)
	}

	if err := s.db.PutBatch(batch); err != nil {
		traceutil.AnnotateError(span, err)
		return nil, err
	}

	blobsSavedCounter.Add(float64(len(persisted)))

	return persisted, nil
}

// BlobSidecarByID retrieves a blob sidecar by identifier, or nil if none is
// stored.
func (s *Store) BlobSidecarByID(ctx context.Context, blobID BlobIdentifier) (interfaces.BlobSidecar, error) {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.BlobSidecarByID")
	defer span.End()

	enc, err := s.db.Get(blobSidecarKey(blobID.BlockRoot, blobID.Index))
	if err != nil || enc == nil {
		return nil, err
	}
	return s.cfg.Codec.UnmarshalBlobSidecar(enc)
}

// PruneOldBlobSidecars removes every blob sidecar at slots up to and
// including upToSlot, in both index families. Pruning is deliberately not
// one atomic batch; a crash mid-way leaves a partially pruned range and
// re-running converges.
func (s *Store) PruneOldBlobSidecars(ctx context.Context, upToSlot types.Slot) error {
	ctx, span := trace.StartSpan(ctx, "BeaconDB.PruneOldBlobSidecars")
	defer span.End()

	var blobsToRemove []BlobIdentifier
	var keysToRemove [][]byte

	// The bare prefix of the next slot sorts after every key at upToSlot
	// and before every key at upToSlot+1, making the bound inclusive.
	iter, err := s.db.IteratorDescending([]byte(slotBlobPrefixAt(upToSlot + 1)))
	if err != nil {
		return err
	}
	defer func() {
		if err := iter.Close(); err != nil {
			log.WithError(err).Error("Could not close iterator")
		}
	}()

	for iter.Next() {
		if !hasSlotBlobPrefix(iter.Key()) {
			break
		}

		// Deserialize the value as a BlobIdentifier as an additional measure
		// to prevent other types of data getting accidentally deleted.
		blobID := BlobIdentifier{}
		if err := blobID.UnmarshalSSZ(iter.Value()); err != nil {
			traceutil.AnnotateError(span, err)
			return err
		}
		blobsToRemove = append(blobsToRemove, blobID)
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		keysToRemove = append(keysToRemove, key)
	}
	if err := iter.Error(); err != nil {
		return err
	}
	if err := iter.Close(); err != nil {
		return err
	}

	for _, blobID := range blobsToRemove {
		if err := s.db.Delete(blobSidecarKey(blobID.BlockRoot, blobID.Index)); err != nil {
			traceutil.AnnotateError(span, err)
			return err
		}
	}

	for _, key := range keysToRemove {
		if err := s.db.Delete(key); err != nil {
			traceutil.AnnotateError(span, err)
			return err
		}
	}

	blobsPrunedCounter.Add(float64(len(blobsToRemove)))

	return nil
}
