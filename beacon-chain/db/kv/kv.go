// Package kv is the persistent fork-choice storage core. It bootstraps the
// chain from an anchor, records finalized and unfinalized blocks, periodic
// state snapshots and blob sidecars under a stable key schema, and
// reconstructs historical beacon states by replaying blocks onto the nearest
// persisted snapshot. The in-memory fork-choice store is rehydrated from
// this layer on restart.
package kv

import (
	"context"
	"net/http"

	"github.com/dgraph-io/ristretto"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	types "github.com/prysmaticlabs/eth2-types"

	"github.com/emberchain/ember/beacon-chain/database"
	"github.com/emberchain/ember/shared/interfaces"
	"github.com/emberchain/ember/shared/params"
)

// DefaultArchivalEpochInterval is the default number of epochs between
// archival state snapshots.
const DefaultArchivalEpochInterval = 32

const (
	// blockCacheSize specifies 1000 slots worth of blocks cached, which
	// would be approximately 2MB.
	blockCacheSize = int64(1 << 21)
	// stateCacheSize bounds the number of recently reconstructed post-block
	// states kept for reuse.
	stateCacheSize = 32
)

// Transitioner applies the consensus state transition. Both operations
// return a state that may or may not alias their input; callers that must
// keep the input unmodified pass a copy.
type Transitioner interface {
	// ExecuteStateTransition applies a trusted block on top of the state.
	ExecuteStateTransition(ctx context.Context, st interfaces.BeaconState, blk interfaces.SignedBeaconBlock) (interfaces.BeaconState, error)
	// ProcessSlots advances the state through empty slots up to the target slot.
	ProcessSlots(ctx context.Context, st interfaces.BeaconState, slot types.Slot) (interfaces.BeaconState, error)
}

// FinalizedFetcher retrieves the latest finalized block and state from a
// remote checkpoint sync endpoint.
type FinalizedFetcher interface {
	FetchFinalized(ctx context.Context, client *http.Client, url string) (interfaces.SignedBeaconBlock, interfaces.BeaconState, error)
}

// GenesisProvider supplies the genesis block and state used as the anchor
// of last resort.
type GenesisProvider interface {
	GenesisBlock() interfaces.SignedBeaconBlock
	GenesisState() interfaces.BeaconState
}

// Config holds the collaborators and policy knobs of the storage layer.
type Config struct {
	ChainConfig           *params.BeaconChainConfig
	Codec                 ValueCodec
	Transitioner          Transitioner
	FinalizedFetcher      FinalizedFetcher
	ArchivalEpochInterval uint64
	PruneStorage          bool
	// MaxEmptySlots caps empty-slot advancement in PreprocessedStatePostBlock.
	// StoredState does not apply it. Zero means unbounded.
	MaxEmptySlots uint64
}

// Store implements the persistent fork-choice storage core on top of an
// ordered key-value database.
type Store struct {
	db         database.Database
	cfg        *Config
	blockCache *ristretto.Cache
	stateCache *lru.Cache
}

// NewStore initializes the storage core around an open database handle.
func NewStore(db database.Database, cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("nil storage config")
	}
	if cfg.ArchivalEpochInterval == 0 {
		return nil, errors.New("archival epoch interval must be non-zero")
	}
	if cfg.Codec == nil {
		return nil, errors.New("storage requires a value codec")
	}
	if cfg.Transitioner == nil {
		return nil, errors.New("storage requires a state transitioner")
	}
	if cfg.ChainConfig == nil {
		cfg.ChainConfig = params.BeaconConfig()
	}
	blockCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1000,           // number of keys to track frequency of (1000).
		MaxCost:     blockCacheSize, // maximum cost of cache (1000 Blocks).
		BufferItems: 64,             // number of keys per Get buffer.
	})
	if err != nil {
		return nil, err
	}
	stateCache, err := lru.New(stateCacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:         db,
		cfg:        cfg,
		blockCache: blockCache,
		stateCache: stateCache,
	}, nil
}

// NewInMemoryStore returns a store backed by an ephemeral database, with the
// default archival interval and pruning disabled.
func NewInMemoryStore(cfg *Config) (*Store, error) {
	inMemCfg := *cfg
	inMemCfg.ArchivalEpochInterval = DefaultArchivalEpochInterval
	inMemCfg.PruneStorage = false
	return NewStore(database.NewMemoryStore(), &inMemCfg)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) contains(key []byte) (bool, error) {
	return s.db.Has(key)
}

func (s *Store) getBlock(key []byte) (interfaces.SignedBeaconBlock, error) {
	enc, err := s.db.Get(key)
	if err != nil || enc == nil {
		return nil, err
	}
	blk, err := s.cfg.Codec.UnmarshalBlock(enc)
	if err != nil {
		return nil, errors.Wrap(err, "could not decode stored block")
	}
	return blk, nil
}

func (s *Store) getState(key []byte) (interfaces.BeaconState, error) {
	enc, err := s.db.Get(key)
	if err != nil || enc == nil {
		return nil, err
	}
	st, err := s.cfg.Codec.UnmarshalState(enc)
	if err != nil {
		return nil, errors.Wrap(err, "could not decode stored state")
	}
	return st, nil
}

func (s *Store) getRoot(key []byte) ([32]byte, bool, error) {
	enc, err := s.db.Get(key)
	if err != nil || enc == nil {
		return [32]byte{}, false, err
	}
	root, err := decodeRoot(enc)
	if err != nil {
		return [32]byte{}, false, err
	}
	return root, true, nil
}

func (s *Store) getSlot(key []byte) (types.Slot, bool, error) {
	enc, err := s.db.Get(key)
	if err != nil || enc == nil {
		return 0, false, err
	}
	slot, err := decodeSlot(enc)
	if err != nil {
		return 0, false, err
	}
	return slot, true, nil
}
