package service

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/joseferreira/stakenet/internal/domain"
	"github.com/joseferreira/stakenet/internal/infra"
)

// PoolService holds operations and endorsements that are not in a stored
// block yet.
type PoolService struct {
	operations   map[domain.OperationID]*domain.Operation
	endorsements map[domain.EndorsementID]*domain.Endorsement
	mu           sync.Mutex
	log          *logrus.Entry
}

func NewPoolService(logger *logrus.Logger) *PoolService {
	return &PoolService{
		operations:   make(map[domain.OperationID]*domain.Operation),
		endorsements: make(map[domain.EndorsementID]*domain.Endorsement),
		log:          logger.WithField("service", "pool"),
	}
}

// AddOperation verifies op and adds it to the pool. It returns the id and
// whether the operation was new.
func (ps *PoolService) AddOperation(op *domain.Operation) (domain.OperationID, bool, error) {
	id, err := op.ID()
	if err != nil {
		return id, false, err
	}
	if err := op.VerifySignature(); err != nil {
		return id, false, fmt.Errorf("operation %s: %w", id, err)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.operations[id]; exists {
		ps.log.WithField("operation_id", id.String()).Debug("Operation already exists in pool, skipping")
		return id, false, nil
	}

	ps.operations[id] = op
	infra.OperationPoolSize.Inc()

	ps.log.WithFields(logrus.Fields{
		"operation_id": id.String(),
		"kind":         op.Content.Op.Kind().String(),
	}).Info("Operation added to pool")
	return id, true, nil
}

func (ps *PoolService) GetOperation(id domain.OperationID) (*domain.Operation, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	op, ok := ps.operations[id]
	return op, ok
}

// LookupOperations maps every requested id to its operation, or to nil
// when the pool does not have it.
func (ps *PoolService) LookupOperations(ids []domain.OperationID) map[domain.OperationID]*domain.Operation {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ops := make(map[domain.OperationID]*domain.Operation, len(ids))
	for _, id := range ids {
		ops[id] = ps.operations[id]
	}
	return ops
}

// UnknownOperationIDs returns the ids from ids that are not in the pool,
// without duplicates and in their original order.
func (ps *PoolService) UnknownOperationIDs(ids []domain.OperationID) []domain.OperationID {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	seen := make(map[domain.OperationID]struct{}, len(ids))
	var unknown []domain.OperationID
	for _, id := range ids {
		if _, ok := ps.operations[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unknown = append(unknown, id)
	}
	return unknown
}

// RemoveOperations removes operations that were included in a block.
func (ps *PoolService) RemoveOperations(ids []domain.OperationID) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for _, id := range ids {
		if _, exists := ps.operations[id]; exists {
			delete(ps.operations, id)
			infra.OperationPoolSize.Dec()
		}
	}
}

// AddEndorsement verifies e and adds it to the pool. It reports whether
// the endorsement was new.
func (ps *PoolService) AddEndorsement(e *domain.Endorsement) (bool, error) {
	id, err := e.ID()
	if err != nil {
		return false, err
	}
	if err := e.VerifySignature(); err != nil {
		return false, fmt.Errorf("endorsement %s: %w", id, err)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.endorsements[id]; exists {
		return false, nil
	}
	ps.endorsements[id] = e
	infra.EndorsementPoolSize.Inc()

	ps.log.WithFields(logrus.Fields{
		"endorsement_id": id.String(),
		"slot":           e.Content.Slot.String(),
	}).Debug("Endorsement added to pool")
	return true, nil
}

func (ps *PoolService) Sizes() (operations, endorsements int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.operations), len(ps.endorsements)
}
