package badger

import (
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// DeadLetterRepository implements storage.DeadLetterRepository for BadgerDB.
type DeadLetterRepository struct {
	backend *Backend
}

var _ storage.DeadLetterRepository = (*DeadLetterRepository)(nil)

// NewDeadLetterRepository creates a new DeadLetterRepository.
func NewDeadLetterRepository(backend *Backend) (storage.DeadLetterRepository, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend required")
	}
	return &DeadLetterRepository{backend: backend}, nil
}

// Close releases repository resources.
func (r *DeadLetterRepository) Close() error {
	return nil
}

// Park stores a dead letter, overwriting any previous one for the same job.
func (r *DeadLetterRepository) Park(ctx context.Context, letter *core.DeadLetter) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDeadLetterKey(letter.JobId)
		if err := tx.Set(key, storage.MarshalDeadLetter(letter)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Get retrieves a dead letter by job ID.
func (r *DeadLetterRepository) Get(ctx context.Context, jobID string) (*core.DeadLetter, error) {
	var result *core.DeadLetter
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeDeadLetterKey(jobID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			result, unmarshalErr = storage.UnmarshalDeadLetter(val)
			return unmarshalErr
		})
	}, false)
	return result, err
}

// List returns up to limit dead letters, most recently parked first.
func (r *DeadLetterRepository) List(ctx context.Context, limit int) ([]*core.DeadLetter, error) {
	var results []*core.DeadLetter
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(deadLetterPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var letter *core.DeadLetter
			if err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				letter, unmarshalErr = storage.UnmarshalDeadLetter(val)
				return unmarshalErr
			}); err != nil {
				return err
			}
			if letter != nil {
				results = append(results, letter)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.DeadLetter) int {
		if a.ParkedAt.After(b.ParkedAt) {
			return -1
		}
		if a.ParkedAt.Before(b.ParkedAt) {
			return 1
		}
		return 0
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Remove deletes a dead letter after a successful requeue.
func (r *DeadLetterRepository) Remove(ctx context.Context, jobID string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDeadLetterKey(jobID)
		if _, err := tx.Get(key); err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
