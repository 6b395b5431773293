// Package domaintest builds signed domain objects for tests.
package domaintest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joseferreira/stakenet/internal/domain"
)

// Context returns small limits suitable for tests.
func Context() *domain.SerializationContext {
	return &domain.SerializationContext{
		ThreadCount:               2,
		EndorsementCount:          8,
		MaxAskBlocksPerMessage:    10,
		MaxAdvertiseLength:        128,
		MaxOperationsPerMessage:   1024,
		MaxEndorsementsPerMessage: 1024,
		MaxOperationsPerBlock:     1024,
		MaxMessageSize:            3 * 1024 * 1024,
		MaxBlockSize:              3 * 1024 * 1024,
		MaxBootstrapBlocks:        100,
		MaxBootstrapCliques:       100,
		MaxBootstrapDeps:          100,
		MaxBootstrapChildren:      100,
		MaxBootstrapPosEntries:    1000,
		MaxBootstrapPosCycles:     5,
		MaxBootstrapMessageSize:   100000000,
	}
}

func Key(t testing.TB) *domain.PrivateKey {
	key, err := domain.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

// ID returns a deterministic hash-sized id derived from seed.
func ID(seed string) domain.Hash {
	return domain.HashBytes([]byte(seed))
}

func Transaction(t testing.TB, key *domain.PrivateKey, amount uint64) *domain.Operation {
	op, err := domain.NewOperation(domain.OperationContent{
		SenderPublicKey: key.PublicKey(),
		Fee:             domain.Amount(1),
		ExpirePeriod:    10,
		Op: &domain.Transaction{
			Recipient: domain.Address(ID("recipient")),
			Amount:    domain.Amount(amount),
		},
	}, key)
	require.NoError(t, err)
	return op
}

func RollBuy(t testing.TB, key *domain.PrivateKey, count uint64) *domain.Operation {
	op, err := domain.NewOperation(domain.OperationContent{
		SenderPublicKey: key.PublicKey(),
		Fee:             domain.Amount(0),
		ExpirePeriod:    1 << 40,
		Op:              &domain.RollBuy{RollCount: count},
	}, key)
	require.NoError(t, err)
	return op
}

func Endorsement(t testing.TB, key *domain.PrivateKey, index uint32) *domain.Endorsement {
	e, err := domain.NewEndorsement(domain.EndorsementContent{
		SenderPublicKey: key.PublicKey(),
		Slot:            domain.Slot{Period: 7, Thread: 1},
		Index:           index,
		EndorsedBlock:   domain.BlockID(ID("endorsed")),
	}, key)
	require.NoError(t, err)
	return e
}

// Block returns a signed non-genesis block for a two-thread context.
func Block(t testing.TB, key *domain.PrivateKey, ops ...*domain.Operation) *domain.Block {
	ids := make([]domain.OperationID, 0, len(ops))
	for _, op := range ops {
		id, err := op.ID()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	header, err := domain.NewBlockHeader(domain.BlockHeaderContent{
		Creator:             key.PublicKey(),
		Slot:                domain.Slot{Period: 8, Thread: 0},
		Parents:             []domain.BlockID{domain.BlockID(ID("parent-0")), domain.BlockID(ID("parent-1"))},
		OperationMerkleRoot: domain.OperationMerkleRoot(ids),
		Endorsements: []*domain.Endorsement{
			Endorsement(t, key, 0),
			Endorsement(t, key, 1),
		},
	}, key, Context())
	require.NoError(t, err)
	if len(ops) == 0 {
		ops = nil
	}
	return &domain.Block{Header: header, Operations: ops}
}
