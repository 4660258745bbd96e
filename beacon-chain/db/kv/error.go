package kv

import "github.com/pkg/errors"

var (
	// ErrCheckpointSyncFailed means the remote anchor fetch failed. Fatal
	// under the Remote strategy, degraded to a warning under Auto.
	ErrCheckpointSyncFailed = errors.New("checkpoint sync failed")
	// ErrDependentRootLookupFailed wraps any lower-level failure while
	// computing a dependent root.
	ErrDependentRootLookupFailed = errors.New("failed to look up dependent root")
	// ErrGenesisBlockRootNotFound means the genesis slot has no recorded block root.
	ErrGenesisBlockRootNotFound = errors.New("genesis block root not found in storage")
	// ErrBlockNotFound means a block referenced by index is absent from both
	// the finalized and unfinalized stores.
	ErrBlockNotFound = errors.New("block not found in storage")
	// ErrStateNotFound means a requested state slot is absent.
	ErrStateNotFound = errors.New("state not found in storage")
	// ErrCheckpointBlockRootMismatch means the checkpoint block does not hash
	// to the root the state checkpoint records. Integrity failure, never retried.
	ErrCheckpointBlockRootMismatch = errors.New("checkpoint block root does not match state checkpoint")
	// ErrPersistedSlotCannotContainAnchor means an anchor candidate state is
	// not at an epoch boundary. Integrity failure, never retried.
	ErrPersistedSlotCannotContainAnchor = errors.New("persisted slot cannot contain anchor")
	// ErrIncorrectPrefix means a storage key failed to decode under the
	// expected key family. Treat as corruption.
	ErrIncorrectPrefix = errors.New("storage key has incorrect prefix")
	// ErrTooManyEmptySlots means slot advancement during reconstruction
	// exceeded the configured cap.
	ErrTooManyEmptySlots = errors.New("too many empty slots to process")
)
