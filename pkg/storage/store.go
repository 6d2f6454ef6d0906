package storage

import (
	"time"

	"github.com/stackdock/stackdock/pkg/types"
)

// Store persists the operation audit log. The write side doubles as the
// operations engine's sink; the read side backs the operations API.
type Store interface {
	SaveOperation(record *types.OperationRecord) error
	GetOperation(id string) (*types.OperationRecord, error)
	ListOperations(projectName string, limit int) ([]*types.OperationRecord, error)
	Prune(olderThan time.Time) (int, error)
	Close() error
}
