package service

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/joseferreira/stakenet/internal/domain"
	"github.com/joseferreira/stakenet/internal/infra"
	"github.com/joseferreira/stakenet/internal/persistence"
)

var ErrMerkleRootMismatch = errors.New("operation merkle root mismatch")

// BlockService validates blocks received from peers and keeps them in the
// block store.
type BlockService struct {
	Persistence *persistence.BlockRepository
	Pool        *PoolService
	sctx        *domain.SerializationContext
	log         *logrus.Entry
}

func NewBlockService(repo *persistence.BlockRepository, pool *PoolService, sctx *domain.SerializationContext, logger *logrus.Logger) (*BlockService, error) {
	bs := &BlockService{
		Persistence: repo,
		Pool:        pool,
		sctx:        sctx,
		log:         logger.WithField("service", "blocks"),
	}

	n, err := repo.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count stored blocks: %w", err)
	}
	infra.StoredBlocks.Set(float64(n))
	bs.log.WithField("blocks", n).Info("BlockService started")

	return bs, nil
}

// ValidateHeader checks the header shape against the serialization context
// and the creator signature.
func (bs *BlockService) ValidateHeader(header *domain.BlockHeader) error {
	if err := header.Content.Validate(bs.sctx); err != nil {
		return fmt.Errorf("invalid header: %w", err)
	}
	if err := header.VerifySignature(); err != nil {
		return fmt.Errorf("invalid header signature: %w", err)
	}
	return nil
}

// ValidateBlock checks the header signature, every operation signature and
// that the header commits to exactly the block's operations.
func (bs *BlockService) ValidateBlock(block *domain.Block) error {
	if err := bs.ValidateHeader(block.Header); err != nil {
		return err
	}
	ids, err := block.OperationIDs()
	if err != nil {
		return err
	}
	for i, op := range block.Operations {
		if err := op.VerifySignature(); err != nil {
			return fmt.Errorf("operation %s: %w", ids[i], err)
		}
	}
	if root := domain.OperationMerkleRoot(ids); root != block.Header.Content.OperationMerkleRoot {
		return fmt.Errorf("%w: computed %s, header %s", ErrMerkleRootMismatch, root, block.Header.Content.OperationMerkleRoot)
	}
	return nil
}

// AddBlockFromNetwork stores a valid block. It reports false for blocks
// that are already stored.
func (bs *BlockService) AddBlockFromNetwork(block *domain.Block) (bool, error) {
	id, err := block.ID()
	if err != nil {
		return false, err
	}

	known, err := bs.Persistence.HasBlock(id)
	if err != nil {
		return false, err
	}
	if known {
		return false, nil
	}

	if err := bs.ValidateBlock(block); err != nil {
		return false, fmt.Errorf("block %s: %w", id, err)
	}

	if _, err := bs.Persistence.PersistBlock(block); err != nil {
		return false, fmt.Errorf("failed to persist block %s: %w", id, err)
	}

	ids, _ := block.OperationIDs()
	bs.Pool.RemoveOperations(ids)

	infra.StoredBlocks.Inc()
	infra.OperationsPerBlock.Observe(float64(len(block.Operations)))

	bs.log.WithFields(logrus.Fields{
		"block_id":   id.String(),
		"slot":       block.Header.Content.Slot.String(),
		"operations": len(block.Operations),
	}).Info("Added block from network")

	return true, nil
}

// GetBlock returns persistence.ErrBlockNotFound for unknown ids.
func (bs *BlockService) GetBlock(id domain.BlockID) (*domain.Block, error) {
	return bs.Persistence.GetBlock(id)
}

func (bs *BlockService) HasBlock(id domain.BlockID) (bool, error) {
	return bs.Persistence.HasBlock(id)
}
