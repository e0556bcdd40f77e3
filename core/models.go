package core

import (
	"encoding/binary"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing so that the same logical
// entity always maps to the same identifier.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Identity is a (provider, external id) pair naming a principal,
// e.g. a Slack user or a Google account.
// JSON tags follow the connector event contract.
type Identity struct {
	Provider   string `json:"provider"`
	ExternalID string `json:"external_id"`
}

// String returns the canonical "provider:external_id" form.
func (i Identity) String() string {
	return i.Provider + ":" + i.ExternalID
}

// ACL describes who may see a document. A caller is authorized iff the
// document is public or one of the caller's identities appears in Allow.
// Absence of a matching identity is the default-deny state.
type ACL struct {
	Allow  []Identity `json:"allow"`
	Public bool       `json:"public"`
}

// Authorizes reports whether a caller holding the given identities may
// see a document carrying this ACL.
func (a *ACL) Authorizes(callers []Identity) bool {
	if a.Public {
		return true
	}
	for _, allowed := range a.Allow {
		for _, caller := range callers {
			if allowed == caller {
				return true
			}
		}
	}
	return false
}

// DocumentKey is the external identity of a document: exactly one live
// document exists per (source, external id) pair.
type DocumentKey struct {
	Source     string
	ExternalID string
}

// ID derives the storage identifier for this key. The derivation is
// content-based, so re-ingesting the same identity always lands on the
// same row.
func (k DocumentKey) ID() ID {
	return IDFromContent(k.Source + "\x00" + k.ExternalID)
}

// String returns the canonical "source/external_id" form.
func (k DocumentKey) String() string {
	return k.Source + "/" + k.ExternalID
}

// Event is a normalized change event emitted by a connector.
// Delete marks a removal; Content may then be empty.
type Event struct {
	Source     string            `json:"source"`
	ExternalID string            `json:"external_id"`
	Title      string            `json:"title"`
	Path       string            `json:"path"`
	Content    string            `json:"content"`
	Meta       map[string]string `json:"meta,omitempty"`
	ACL        ACL               `json:"acl"`
	Version    string            `json:"version"`
	EventTime  time.Time         `json:"event_time"`
	Delete     bool              `json:"delete,omitempty"`
}

// Key returns the document identity this event targets.
func (e *Event) Key() DocumentKey {
	return DocumentKey{Source: e.Source, ExternalID: e.ExternalID}
}

// Document is the canonical record produced by normalization.
// Deleted documents are excluded from retrieval but retained for audit.
type Document struct {
	Id         ID
	Source     string
	ExternalID string
	Title      string
	Path       string
	Meta       map[string]string
	ACL        ACL
	Version    string // opaque provider version, compared only for equality
	Deleted    bool
	EventTime  time.Time // provider event time of the last applied change
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Key returns the document's external identity.
func (d *Document) Key() DocumentKey {
	return DocumentKey{Source: d.Source, ExternalID: d.ExternalID}
}

// Span is a half-open [Start, End) rune offset range into a document's content.
type Span struct {
	Start int
	End   int
}

// Chunk is an ordered text span of a document, owned exclusively by that
// document. The chunk set for a document is regenerated atomically on update.
type Chunk struct {
	Id         ID
	DocumentId ID
	Seq        int
	Text       string
	Span       Span
	Vector     []float32 // embedding, populated during ingestion
}

// JobStatus tracks an ingestion job through its lifecycle.
type JobStatus int

const (
	// JobQueued means the job is waiting to be picked up.
	JobQueued JobStatus = iota + 1
	// JobProcessing means a worker currently owns the job.
	JobProcessing
	// JobSucceeded means the job was applied to the index store.
	JobSucceeded
	// JobFailed means the last attempt failed and a retry is scheduled.
	JobFailed
	// JobDead means retries are exhausted and the job is parked in the
	// dead-letter store.
	JobDead
)

// Job is a normalized event awaiting processing. The raw payload lives in
// the payload store; the job carries only a compact reference to it.
type Job struct {
	Id            string
	Key           DocumentKey
	PayloadRef    string
	Seq           uint64 // enqueue sequence, monotonic per queue
	Attempts      int
	Status        JobStatus
	EventTime     time.Time
	EnqueuedAt    time.Time
	NextAttemptAt time.Time
	UpdatedAt     time.Time
	LastError     string
}

// DeadLetter is the parked form of a job that exhausted its retries.
// It snapshots enough context for operator inspection and requeue.
type DeadLetter struct {
	JobId      string
	Key        DocumentKey
	PayloadRef string
	Attempts   int
	Reason     string
	EventTime  time.Time
	ParkedAt   time.Time
}

// ScoredChunk is a raw candidate from a single retrieval branch.
type ScoredChunk struct {
	ChunkId    ID
	DocumentId ID
	Score      float64
}

// Filters restricts retrieval to a subset of the corpus.
type Filters struct {
	Sources    []string
	PathPrefix string
	After      time.Time
	Before     time.Time
}

// Match reports whether the document satisfies every set filter.
// A zero Filters matches everything.
func (f Filters) Match(doc *Document) bool {
	if len(f.Sources) > 0 && !slices.Contains(f.Sources, doc.Source) {
		return false
	}
	if f.PathPrefix != "" && !strings.HasPrefix(doc.Path, f.PathPrefix) {
		return false
	}
	if !f.After.IsZero() && doc.EventTime.Before(f.After) {
		return false
	}
	if !f.Before.IsZero() && doc.EventTime.After(f.Before) {
		return false
	}
	return true
}

// Fingerprint returns a stable textual form of the filters for cache
// key derivation.
func (f Filters) Fingerprint() string {
	sources := slices.Clone(f.Sources)
	slices.Sort(sources)
	return fmt.Sprintf("src=%s|path=%s|after=%d|before=%d",
		strings.Join(sources, ","), f.PathPrefix, f.After.UnixMicro(), f.Before.UnixMicro())
}
