package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidContext = errors.New("invalid serialization context")

// SerializationContext holds the protocol-wide limits used to bound
// decoding. It is built once when the node starts and only read afterwards;
// decoders receive it explicitly.
type SerializationContext struct {
	ThreadCount      uint8
	EndorsementCount uint32

	MaxAskBlocksPerMessage    uint32
	MaxAdvertiseLength        uint32
	MaxOperationsPerMessage   uint32
	MaxEndorsementsPerMessage uint32
	MaxOperationsPerBlock     uint32
	MaxMessageSize            uint32
	MaxBlockSize              uint32

	MaxBootstrapBlocks      uint32
	MaxBootstrapCliques     uint32
	MaxBootstrapDeps        uint32
	MaxBootstrapChildren    uint32
	MaxBootstrapPosEntries  uint32
	MaxBootstrapPosCycles   uint32
	MaxBootstrapMessageSize uint32
}

// DefaultSerializationContext returns the mainnet limits.
func DefaultSerializationContext() *SerializationContext {
	return &SerializationContext{
		ThreadCount:               32,
		EndorsementCount:          9,
		MaxAskBlocksPerMessage:    128,
		MaxAdvertiseLength:        10000,
		MaxOperationsPerMessage:   1024,
		MaxEndorsementsPerMessage: 1024,
		MaxOperationsPerBlock:     5000,
		MaxMessageSize:            1 << 20,
		MaxBlockSize:              3 << 20,
		MaxBootstrapBlocks:        1000000,
		MaxBootstrapCliques:       1000,
		MaxBootstrapDeps:          1000,
		MaxBootstrapChildren:      1000,
		MaxBootstrapPosEntries:    1000000000,
		MaxBootstrapPosCycles:     5,
		MaxBootstrapMessageSize:   100000000,
	}
}

func (c *SerializationContext) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil", ErrInvalidContext)
	}
	if c.ThreadCount == 0 {
		return fmt.Errorf("%w: thread count must be positive", ErrInvalidContext)
	}
	if c.MaxMessageSize == 0 {
		return fmt.Errorf("%w: max message size must be positive", ErrInvalidContext)
	}
	if c.MaxBlockSize == 0 {
		return fmt.Errorf("%w: max block size must be positive", ErrInvalidContext)
	}
	return nil
}
