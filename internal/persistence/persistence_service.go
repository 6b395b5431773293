package persistence

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/joseferreira/stakenet/internal/domain"
)

const (
	blocksBucket = "blocks"
)

var ErrBlockNotFound = errors.New("block not found")

// BlockRepository stores blocks in their compact encoding, keyed by block
// id. Stored bytes are decoded with the same limits as network input.
type BlockRepository struct {
	db  *bolt.DB
	ctx *domain.SerializationContext
	log *logrus.Entry
}

func NewBlockRepository(dbPath string, ctx *domain.SerializationContext, logger *logrus.Logger) (*BlockRepository, error) {
	log := logger.WithField("db_path", dbPath)

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(blocksBucket))
		if err != nil {
			return fmt.Errorf("failed to create blocks bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Info("Database opened")
	return &BlockRepository{
		db:  db,
		ctx: ctx,
		log: log,
	}, nil
}

// LoadBlocks returns every stored block. Entries that no longer decode are
// logged and skipped.
func (br *BlockRepository) LoadBlocks() ([]*domain.Block, error) {
	var blocks []*domain.Block

	err := br.db.View(func(boltTx *bolt.Tx) error {
		bucket := boltTx.Bucket([]byte(blocksBucket))
		if bucket == nil {
			return fmt.Errorf("blocks bucket not found")
		}

		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			block, err := br.decode(v)
			if err != nil {
				br.log.WithError(err).WithField("key", fmt.Sprintf("%x", k)).Warn("Failed to decode block from database")
				continue
			}
			blocks = append(blocks, block)
		}
		br.log.Infof("Loaded %d blocks from the database", len(blocks))

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load blocks from database: %w", err)
	}

	return blocks, nil
}

// PersistBlock stores block under its id and returns that id.
func (br *BlockRepository) PersistBlock(block *domain.Block) (domain.BlockID, error) {
	id, err := block.ID()
	if err != nil {
		return domain.BlockID{}, fmt.Errorf("failed to compute block id: %w", err)
	}
	encoded, err := block.MarshalCompact()
	if err != nil {
		return domain.BlockID{}, fmt.Errorf("failed to encode block: %w", err)
	}

	err = br.db.Update(func(boltTx *bolt.Tx) error {
		bucket := boltTx.Bucket([]byte(blocksBucket))
		if bucket == nil {
			return fmt.Errorf("blocks bucket not found")
		}
		return bucket.Put(id[:], encoded)
	})
	return id, err
}

func (br *BlockRepository) GetBlock(id domain.BlockID) (*domain.Block, error) {
	var block *domain.Block
	err := br.db.View(func(boltTx *bolt.Tx) error {
		bucket := boltTx.Bucket([]byte(blocksBucket))
		if bucket == nil {
			return fmt.Errorf("blocks bucket not found")
		}
		v := bucket.Get(id[:])
		if v == nil {
			return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
		}
		var err error
		block, err = br.decode(v)
		return err
	})
	if err != nil {
		return nil, err
	}
	return block, nil
}

func (br *BlockRepository) HasBlock(id domain.BlockID) (bool, error) {
	var found bool
	err := br.db.View(func(boltTx *bolt.Tx) error {
		bucket := boltTx.Bucket([]byte(blocksBucket))
		if bucket == nil {
			return fmt.Errorf("blocks bucket not found")
		}
		found = bucket.Get(id[:]) != nil
		return nil
	})
	return found, err
}

func (br *BlockRepository) Count() (int, error) {
	var n int
	err := br.db.View(func(boltTx *bolt.Tx) error {
		bucket := boltTx.Bucket([]byte(blocksBucket))
		if bucket == nil {
			return fmt.Errorf("blocks bucket not found")
		}
		n = bucket.Stats().KeyN
		return nil
	})
	return n, err
}

// bbolt values are only valid inside the transaction; the domain decoders
// copy every field out of v.
func (br *BlockRepository) decode(v []byte) (*domain.Block, error) {
	block, n, err := domain.UnmarshalBlock(v, br.ctx)
	if err != nil {
		return nil, err
	}
	if n != len(v) {
		return nil, fmt.Errorf("%d trailing bytes after block", len(v)-n)
	}
	return block, nil
}

func (br *BlockRepository) Close() {
	br.log.Info("Closing database")
	if err := br.db.Close(); err != nil {
		br.log.WithError(err).Error("Failed to close database")
	}
}
