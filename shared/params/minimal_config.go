package params

// MinimalSpecConfig retrieves the minimal config used in spec tests.
func MinimalSpecConfig() *BeaconChainConfig {
	minimalConfig := MainnetConfig()
	minimalConfig.SecondsPerSlot = 6
	minimalConfig.SlotsPerEpoch = 8
	minimalConfig.SlotsPerHistoricalRoot = 64
	minimalConfig.GenesisForkVersion = []byte{0, 0, 0, 1}
	minimalConfig.AltairForkVersion = []byte{1, 0, 0, 1}
	minimalConfig.BellatrixForkVersion = []byte{2, 0, 0, 1}
	minimalConfig.CapellaForkVersion = []byte{3, 0, 0, 1}
	minimalConfig.DenebForkVersion = []byte{4, 0, 0, 1}
	return minimalConfig
}
