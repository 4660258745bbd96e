// Package params defines the beacon chain configuration consumed by the
// storage layer and its collaborators.
package params

import types "github.com/prysmaticlabs/eth2-types"

// BeaconChainConfig contains the subset of consensus parameters the node
// needs outside of the state transition itself: slot timing, epoch layout
// and the fork schedule used to dispatch serialization by version.
type BeaconChainConfig struct {
	// Time parameters.
	SecondsPerSlot         uint64 `yaml:"SECONDS_PER_SLOT"`          // SecondsPerSlot is how many seconds are in a single slot.
	SlotsPerEpoch          uint64 `yaml:"SLOTS_PER_EPOCH"`           // SlotsPerEpoch is the number of slots in an epoch.
	SlotsPerHistoricalRoot uint64 `yaml:"SLOTS_PER_HISTORICAL_ROOT"` // SlotsPerHistoricalRoot defines how often the historical root is saved.

	// Initial values.
	GenesisSlot  types.Slot  `yaml:"GENESIS_SLOT"`  // GenesisSlot is the very first slot of the chain.
	GenesisEpoch types.Epoch `yaml:"GENESIS_EPOCH"` // GenesisEpoch is the very first epoch of the chain.

	// Constants.
	FarFutureEpoch types.Epoch `yaml:"FAR_FUTURE_EPOCH"` // FarFutureEpoch represents a epoch extremely far away in the future used as the default penalization epoch for validators.

	// Fork schedule. Deserialization of blocks and states dispatches on the
	// version active at the payload's epoch.
	GenesisForkVersion   []byte      `yaml:"GENESIS_FORK_VERSION"`   // GenesisForkVersion is used to track fork version between state transitions.
	AltairForkVersion    []byte      `yaml:"ALTAIR_FORK_VERSION"`    // AltairForkVersion is used to represent the fork version for altair.
	AltairForkEpoch      types.Epoch `yaml:"ALTAIR_FORK_EPOCH"`      // AltairForkEpoch is used to represent the assigned fork epoch for altair.
	BellatrixForkVersion []byte      `yaml:"BELLATRIX_FORK_VERSION"` // BellatrixForkVersion is used to represent the fork version for bellatrix.
	BellatrixForkEpoch   types.Epoch `yaml:"BELLATRIX_FORK_EPOCH"`   // BellatrixForkEpoch is used to represent the assigned fork epoch for bellatrix.
	CapellaForkVersion   []byte      `yaml:"CAPELLA_FORK_VERSION"`   // CapellaForkVersion is used to represent the fork version for capella.
	CapellaForkEpoch     types.Epoch `yaml:"CAPELLA_FORK_EPOCH"`     // CapellaForkEpoch is used to represent the assigned fork epoch for capella.
	DenebForkVersion     []byte      `yaml:"DENEB_FORK_VERSION"`     // DenebForkVersion is used to represent the fork version for deneb.
	DenebForkEpoch       types.Epoch `yaml:"DENEB_FORK_EPOCH"`       // DenebForkEpoch is used to represent the assigned fork epoch for deneb.

	// Deneb values.
	MaxBlobsPerBlock uint64 `yaml:"MAX_BLOBS_PER_BLOCK"` // MaxBlobsPerBlock defines the max blob sidecars a block can carry.
}

var beaconConfig = MainnetConfig()

// BeaconConfig retrieves the active beacon chain config.
func BeaconConfig() *BeaconChainConfig {
	return beaconConfig
}

// OverrideBeaconConfig by replacing the config. The preferred pattern is to
// call this once at startup, before any slot arithmetic runs.
func OverrideBeaconConfig(c *BeaconChainConfig) {
	beaconConfig = c
}

// UseMinimalConfig for testing.
func UseMinimalConfig() {
	beaconConfig = MinimalSpecConfig()
}

// UseMainnetConfig for beacon chain services.
func UseMainnetConfig() {
	beaconConfig = MainnetConfig()
}
