package params

// MainnetConfig returns the configuration to be used in the main network.
func MainnetConfig() *BeaconChainConfig {
	return &BeaconChainConfig{
		// Time parameters.
		SecondsPerSlot:         12,
		SlotsPerEpoch:          32,
		SlotsPerHistoricalRoot: 8192,

		// Initial values.
		GenesisSlot:  0,
		GenesisEpoch: 0,

		// Constants.
		FarFutureEpoch: 1<<64 - 1,

		// Fork schedule.
		GenesisForkVersion:   []byte{0, 0, 0, 0},
		AltairForkVersion:    []byte{1, 0, 0, 0},
		AltairForkEpoch:      74240,
		BellatrixForkVersion: []byte{2, 0, 0, 0},
		BellatrixForkEpoch:   144896,
		CapellaForkVersion:   []byte{3, 0, 0, 0},
		CapellaForkEpoch:     194048,
		DenebForkVersion:     []byte{4, 0, 0, 0},
		DenebForkEpoch:       269568,

		// Deneb values.
		MaxBlobsPerBlock: 6,
	}
}
