package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/stackdock/stackdock/pkg/types"
)

var bucketOperations = []byte("operations")

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "stackdock.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketOperations)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// operationKey orders the bucket chronologically. The ID suffix keeps keys
// unique when two operations start in the same nanosecond, and makes the
// key stable across the pending/running/terminal writes of one operation.
func operationKey(record *types.OperationRecord) []byte {
	return []byte(record.StartedAt.UTC().Format(time.RFC3339Nano) + "/" + record.ID)
}

// SaveOperation upserts the record. Called for every status transition, so
// the stored value always reflects the latest state of the operation.
func (s *BoltStore) SaveOperation(record *types.OperationRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOperations)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put(operationKey(record), data)
	})
}

// GetOperation looks up a record by its ID.
func (s *BoltStore) GetOperation(id string) (*types.OperationRecord, error) {
	var found *types.OperationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOperations)
		return b.ForEach(func(k, v []byte) error {
			var record types.OperationRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if record.ID == id {
				found = &record
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("operation not found: %s", id)
	}
	return found, nil
}

// ListOperations returns the most recent records, newest first. limit <= 0
// means no limit. projectName filters to one project when non-empty.
func (s *BoltStore) ListOperations(projectName string, limit int) ([]*types.OperationRecord, error) {
	var records []*types.OperationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOperations).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var record types.OperationRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if projectName != "" && record.ProjectName != projectName {
				continue
			}
			records = append(records, &record)
			if limit > 0 && len(records) >= limit {
				return nil
			}
		}
		return nil
	})
	return records, err
}

// Prune deletes records that started before the cutoff.
func (s *BoltStore) Prune(olderThan time.Time) (int, error) {
	pruned := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOperations).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var record types.OperationRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if !record.StartedAt.Before(olderThan) {
				// Keys are chronological; everything after this is newer.
				return nil
			}
			if err := c.Delete(); err != nil {
				return err
			}
			pruned++
		}
		return nil
	})
	return pruned, err
}
