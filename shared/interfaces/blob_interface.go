package interfaces

import (
	types "github.com/prysmaticlabs/eth2-types"
)

// BlobSidecar is an interface describing the method set of a blob sidecar.
type BlobSidecar interface {
	Slot() types.Slot
	BlockRoot() [32]byte
	Index() uint64
	MarshalSSZ() ([]byte, error)
	IsNil() bool
}
