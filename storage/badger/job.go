package badger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
// The pending queue is an index ordered by enqueue sequence, so Dequeue
// hands out jobs oldest-first.
type JobRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) (storage.JobRepository, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend required")
	}
	idSeq, err := backend.GetSequence(jobIDSeq)
	if err != nil {
		return nil, err
	}
	return &JobRepository{backend: backend, idSeq: idSeq}, nil
}

// Close releases the queue sequence.
func (r *JobRepository) Close() error {
	return r.idSeq.Release()
}

// Enqueue durably stores a job and its raw payload.
func (r *JobRepository) Enqueue(ctx context.Context, job *core.Job, payload []byte) (*core.Job, error) {
	seq, err := r.idSeq.Next()
	if err != nil {
		return nil, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if seq == 0 {
		seq, err = r.idSeq.Next()
		if err != nil {
			return nil, err
		}
	}

	if job.Id == "" {
		job.Id = uuid.NewString()
	}
	if job.PayloadRef == "" {
		job.PayloadRef = "payload-" + job.Id
	}
	job.Seq = seq
	job.Status = core.JobQueued
	now := time.Now().UTC().Truncate(time.Microsecond)
	job.EnqueuedAt = now
	job.UpdatedAt = now
	if job.NextAttemptAt.IsZero() {
		job.NextAttemptAt = now
	}

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makePayloadKey(job.PayloadRef), payload); err != nil {
			return err
		}
		if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
			return err
		}
		if err := tx.Set(makeJobPendingKey(job.Seq), []byte(job.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	return job, err
}

// Dequeue claims the oldest eligible queued job and marks it processing.
func (r *JobRepository) Dequeue(ctx context.Context, now time.Time) (*core.Job, error) {
	var claimed *core.Job

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// The claim scan owns an iterator, which must be closed before
		// the transaction commits.
		job, err := claimPending(tx, now)
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}
		claimed = job
		return tx.Commit()
	}, true)

	return claimed, err
}

// claimPending walks the pending queue oldest-first and marks the first
// eligible job processing. Returns nil when nothing is eligible.
func claimPending(tx *badger.Txn, now time.Time) (*core.Job, error) {
	prefix := []byte(jobPendingPrefix + ":")
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		var jobID string
		if err := iter.Item().Value(func(val []byte) error {
			jobID = string(val)
			return nil
		}); err != nil {
			return nil, err
		}

		job, err := readJob(tx, makeJobKey(jobID))
		if err != nil {
			return nil, err
		}
		if job == nil || job.Status != core.JobQueued {
			// Stale index entry; drop it.
			if err := tx.Delete(slices.Clone(iter.Item().Key())); err != nil {
				return nil, err
			}
			continue
		}
		if job.NextAttemptAt.After(now) {
			continue
		}

		job.Status = core.JobProcessing
		job.UpdatedAt = now
		if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
			return nil, err
		}
		if err := tx.Delete(slices.Clone(iter.Item().Key())); err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, nil
}

// Update persists job state changes. A job moved back to status queued
// re-enters the pending queue.
func (r *JobRepository) Update(ctx context.Context, job *core.Job) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		old, err := readJob(tx, makeJobKey(job.Id))
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		job.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
		if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
			return err
		}

		if job.Status == core.JobQueued && old.Status != core.JobQueued {
			if err := tx.Set(makeJobPendingKey(job.Seq), []byte(job.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Get retrieves a job by ID.
func (r *JobRepository) Get(ctx context.Context, id string) (*core.Job, error) {
	var result *core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readJob(tx, makeJobKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// Requeue resets a dead job to queued with zero attempts.
func (r *JobRepository) Requeue(ctx context.Context, id string) (*core.Job, error) {
	var result *core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		job, err := readJob(tx, makeJobKey(id))
		if err != nil {
			return err
		}
		if job == nil || job.Status != core.JobDead {
			return storage.ErrNotFound
		}

		now := time.Now().UTC().Truncate(time.Microsecond)
		job.Attempts = 0
		job.Status = core.JobQueued
		job.NextAttemptAt = now
		job.UpdatedAt = now
		job.LastError = ""

		if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
			return err
		}
		if err := tx.Set(makeJobPendingKey(job.Seq), []byte(job.Id)); err != nil {
			return err
		}
		result = job
		return tx.Commit()
	}, true)
	return result, err
}

// Payload dereferences a job's payload reference.
func (r *JobRepository) Payload(ctx context.Context, ref string) ([]byte, error) {
	var payload []byte
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makePayloadKey(ref))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrPayloadMissing
			}
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	}, false)
	return payload, err
}

// QueueDepth reports the number of jobs currently queued.
func (r *JobRepository) QueueDepth(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := []byte(jobPendingPrefix + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// readJob reads a job from the transaction.
func readJob(tx *badger.Txn, key []byte) (*core.Job, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var job *core.Job
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		job, unmarshalErr = storage.UnmarshalJob(val)
		return unmarshalErr
	})
	return job, err
}
