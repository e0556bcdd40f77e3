package core

import (
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Hand-written MUS serializers for the records persisted in the index
// store. Field order is part of the stored format; append new fields at
// the end and never reorder existing ones.

var (
	// IDMUS serializes entity identifiers.
	IDMUS = idMUS{}
	// IdentityMUS serializes principal identities.
	IdentityMUS = identityMUS{}
	// ACLMUS serializes ACL descriptors.
	ACLMUS = aclMUS{}
	// DocumentMUS serializes canonical document records.
	DocumentMUS = documentMUS{}
	// ChunkMUS serializes chunk records.
	ChunkMUS = chunkMUS{}
	// JobMUS serializes ingestion jobs.
	JobMUS = jobMUS{}
	// DeadLetterMUS serializes parked jobs.
	DeadLetterMUS = deadLetterMUS{}

	identitySliceMUS = ord.NewSliceSer[Identity](IdentityMUS)
	metaMUS          = ord.NewMapSer[string, string](ord.String, ord.String)
	vectorMUS        = ord.NewSliceSer[float32](varint.Float32)
)

var (
	_ mus.Serializer[ID]         = IDMUS
	_ mus.Serializer[Identity]   = IdentityMUS
	_ mus.Serializer[ACL]        = ACLMUS
	_ mus.Serializer[Document]   = DocumentMUS
	_ mus.Serializer[Chunk]      = ChunkMUS
	_ mus.Serializer[Job]        = JobMUS
	_ mus.Serializer[DeadLetter] = DeadLetterMUS
)

type idMUS struct{}

func (idMUS) Marshal(id ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(id ID) int {
	return varint.Uint64.Size(uint64(id))
}

func (idMUS) Skip(bs []byte) (int, error) {
	return varint.Uint64.Skip(bs)
}

// timeMUS stores timestamps as Unix microseconds, matching the precision
// used by the storage key encoding.
type timeMUS struct{}

func (timeMUS) Marshal(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func (timeMUS) Unmarshal(bs []byte) (time.Time, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(v).UTC(), n, nil
}

func (timeMUS) Size(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

func (timeMUS) Skip(bs []byte) (int, error) {
	return varint.Int64.Skip(bs)
}

var timeSer = timeMUS{}

type identityMUS struct{}

func (identityMUS) Marshal(i Identity, bs []byte) (n int) {
	n = ord.String.Marshal(i.Provider, bs)
	n += ord.String.Marshal(i.ExternalID, bs[n:])
	return n
}

func (identityMUS) Unmarshal(bs []byte) (i Identity, n int, err error) {
	i.Provider, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	i.ExternalID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	return
}

func (identityMUS) Size(i Identity) int {
	return ord.String.Size(i.Provider) + ord.String.Size(i.ExternalID)
}

func (identityMUS) Skip(bs []byte) (n int, err error) {
	n, err = ord.String.Skip(bs)
	if err != nil {
		return
	}
	var n1 int
	n1, err = ord.String.Skip(bs[n:])
	n += n1
	return
}

type aclMUS struct{}

func (aclMUS) Marshal(a ACL, bs []byte) (n int) {
	n = identitySliceMUS.Marshal(a.Allow, bs)
	n += ord.Bool.Marshal(a.Public, bs[n:])
	return n
}

func (aclMUS) Unmarshal(bs []byte) (a ACL, n int, err error) {
	a.Allow, n, err = identitySliceMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	a.Public, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	return
}

func (aclMUS) Size(a ACL) int {
	return identitySliceMUS.Size(a.Allow) + ord.Bool.Size(a.Public)
}

func (aclMUS) Skip(bs []byte) (n int, err error) {
	n, err = identitySliceMUS.Skip(bs)
	if err != nil {
		return
	}
	var n1 int
	n1, err = ord.Bool.Skip(bs[n:])
	n += n1
	return
}

type documentMUS struct{}

func (documentMUS) Marshal(d Document, bs []byte) (n int) {
	n = IDMUS.Marshal(d.Id, bs)
	n += ord.String.Marshal(d.Source, bs[n:])
	n += ord.String.Marshal(d.ExternalID, bs[n:])
	n += ord.String.Marshal(d.Title, bs[n:])
	n += ord.String.Marshal(d.Path, bs[n:])
	n += metaMUS.Marshal(d.Meta, bs[n:])
	n += ACLMUS.Marshal(d.ACL, bs[n:])
	n += ord.String.Marshal(d.Version, bs[n:])
	n += ord.Bool.Marshal(d.Deleted, bs[n:])
	n += timeSer.Marshal(d.EventTime, bs[n:])
	n += timeSer.Marshal(d.CreatedAt, bs[n:])
	n += timeSer.Marshal(d.UpdatedAt, bs[n:])
	return n
}

func (documentMUS) Unmarshal(bs []byte) (d Document, n int, err error) {
	var n1 int
	if d.Id, n, err = IDMUS.Unmarshal(bs); err != nil {
		return
	}
	if d.Source, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.ExternalID, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Title, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Path, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Meta, n1, err = metaMUS.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.ACL, n1, err = ACLMUS.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Version, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Deleted, n1, err = ord.Bool.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.EventTime, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.CreatedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.UpdatedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	return d, n, nil
}

func (documentMUS) Size(d Document) int {
	return IDMUS.Size(d.Id) +
		ord.String.Size(d.Source) +
		ord.String.Size(d.ExternalID) +
		ord.String.Size(d.Title) +
		ord.String.Size(d.Path) +
		metaMUS.Size(d.Meta) +
		ACLMUS.Size(d.ACL) +
		ord.String.Size(d.Version) +
		ord.Bool.Size(d.Deleted) +
		timeSer.Size(d.EventTime) +
		timeSer.Size(d.CreatedAt) +
		timeSer.Size(d.UpdatedAt)
}

func (documentMUS) Skip(bs []byte) (n int, err error) {
	skippers := []func([]byte) (int, error){
		IDMUS.Skip,
		ord.String.Skip, ord.String.Skip, ord.String.Skip, ord.String.Skip,
		metaMUS.Skip,
		ACLMUS.Skip,
		ord.String.Skip,
		ord.Bool.Skip,
		timeSer.Skip, timeSer.Skip, timeSer.Skip,
	}
	var n1 int
	for _, skip := range skippers {
		if n1, err = skip(bs[n:]); err != nil {
			return n + n1, err
		}
		n += n1
	}
	return n, nil
}

type chunkMUS struct{}

func (chunkMUS) Marshal(c Chunk, bs []byte) (n int) {
	n = IDMUS.Marshal(c.Id, bs)
	n += IDMUS.Marshal(c.DocumentId, bs[n:])
	n += varint.Int.Marshal(c.Seq, bs[n:])
	n += ord.String.Marshal(c.Text, bs[n:])
	n += varint.Int.Marshal(c.Span.Start, bs[n:])
	n += varint.Int.Marshal(c.Span.End, bs[n:])
	n += vectorMUS.Marshal(c.Vector, bs[n:])
	return n
}

func (chunkMUS) Unmarshal(bs []byte) (c Chunk, n int, err error) {
	var n1 int
	if c.Id, n, err = IDMUS.Unmarshal(bs); err != nil {
		return
	}
	if c.DocumentId, n1, err = IDMUS.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.Seq, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.Text, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.Span.Start, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.Span.End, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.Vector, n1, err = vectorMUS.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	return c, n, nil
}

func (chunkMUS) Size(c Chunk) int {
	return IDMUS.Size(c.Id) +
		IDMUS.Size(c.DocumentId) +
		varint.Int.Size(c.Seq) +
		ord.String.Size(c.Text) +
		varint.Int.Size(c.Span.Start) +
		varint.Int.Size(c.Span.End) +
		vectorMUS.Size(c.Vector)
}

func (chunkMUS) Skip(bs []byte) (n int, err error) {
	skippers := []func([]byte) (int, error){
		IDMUS.Skip, IDMUS.Skip,
		varint.Int.Skip,
		ord.String.Skip,
		varint.Int.Skip, varint.Int.Skip,
		vectorMUS.Skip,
	}
	var n1 int
	for _, skip := range skippers {
		if n1, err = skip(bs[n:]); err != nil {
			return n + n1, err
		}
		n += n1
	}
	return n, nil
}

type jobMUS struct{}

func (jobMUS) Marshal(j Job, bs []byte) (n int) {
	n = ord.String.Marshal(j.Id, bs)
	n += ord.String.Marshal(j.Key.Source, bs[n:])
	n += ord.String.Marshal(j.Key.ExternalID, bs[n:])
	n += ord.String.Marshal(j.PayloadRef, bs[n:])
	n += varint.Uint64.Marshal(j.Seq, bs[n:])
	n += varint.Int.Marshal(j.Attempts, bs[n:])
	n += varint.Int.Marshal(int(j.Status), bs[n:])
	n += timeSer.Marshal(j.EventTime, bs[n:])
	n += timeSer.Marshal(j.EnqueuedAt, bs[n:])
	n += timeSer.Marshal(j.NextAttemptAt, bs[n:])
	n += timeSer.Marshal(j.UpdatedAt, bs[n:])
	n += ord.String.Marshal(j.LastError, bs[n:])
	return n
}

func (jobMUS) Unmarshal(bs []byte) (j Job, n int, err error) {
	var n1 int
	if j.Id, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if j.Key.Source, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	if j.Key.ExternalID, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	if j.PayloadRef, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	if j.Seq, n1, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	if j.Attempts, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	var status int
	if status, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	j.Status = JobStatus(status)
	n += n1
	if j.EventTime, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	if j.EnqueuedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	if j.NextAttemptAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	if j.UpdatedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	if j.LastError, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return j, n + n1, err
	}
	n += n1
	return j, n, nil
}

func (jobMUS) Size(j Job) int {
	return ord.String.Size(j.Id) +
		ord.String.Size(j.Key.Source) +
		ord.String.Size(j.Key.ExternalID) +
		ord.String.Size(j.PayloadRef) +
		varint.Uint64.Size(j.Seq) +
		varint.Int.Size(j.Attempts) +
		varint.Int.Size(int(j.Status)) +
		timeSer.Size(j.EventTime) +
		timeSer.Size(j.EnqueuedAt) +
		timeSer.Size(j.NextAttemptAt) +
		timeSer.Size(j.UpdatedAt) +
		ord.String.Size(j.LastError)
}

func (jobMUS) Skip(bs []byte) (n int, err error) {
	skippers := []func([]byte) (int, error){
		ord.String.Skip, ord.String.Skip, ord.String.Skip, ord.String.Skip,
		varint.Uint64.Skip,
		varint.Int.Skip, varint.Int.Skip,
		timeSer.Skip, timeSer.Skip, timeSer.Skip, timeSer.Skip,
		ord.String.Skip,
	}
	var n1 int
	for _, skip := range skippers {
		if n1, err = skip(bs[n:]); err != nil {
			return n + n1, err
		}
		n += n1
	}
	return n, nil
}

type deadLetterMUS struct{}

func (deadLetterMUS) Marshal(d DeadLetter, bs []byte) (n int) {
	n = ord.String.Marshal(d.JobId, bs)
	n += ord.String.Marshal(d.Key.Source, bs[n:])
	n += ord.String.Marshal(d.Key.ExternalID, bs[n:])
	n += ord.String.Marshal(d.PayloadRef, bs[n:])
	n += varint.Int.Marshal(d.Attempts, bs[n:])
	n += ord.String.Marshal(d.Reason, bs[n:])
	n += timeSer.Marshal(d.EventTime, bs[n:])
	n += timeSer.Marshal(d.ParkedAt, bs[n:])
	return n
}

func (deadLetterMUS) Unmarshal(bs []byte) (d DeadLetter, n int, err error) {
	var n1 int
	if d.JobId, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if d.Key.Source, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Key.ExternalID, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.PayloadRef, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Attempts, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Reason, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.EventTime, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.ParkedAt, n1, err = timeSer.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	return d, n, nil
}

func (deadLetterMUS) Size(d DeadLetter) int {
	return ord.String.Size(d.JobId) +
		ord.String.Size(d.Key.Source) +
		ord.String.Size(d.Key.ExternalID) +
		ord.String.Size(d.PayloadRef) +
		varint.Int.Size(d.Attempts) +
		ord.String.Size(d.Reason) +
		timeSer.Size(d.EventTime) +
		timeSer.Size(d.ParkedAt)
}

func (deadLetterMUS) Skip(bs []byte) (n int, err error) {
	skippers := []func([]byte) (int, error){
		ord.String.Skip, ord.String.Skip, ord.String.Skip, ord.String.Skip,
		varint.Int.Skip,
		ord.String.Skip,
		timeSer.Skip, timeSer.Skip,
	}
	var n1 int
	for _, skip := range skippers {
		if n1, err = skip(bs[n:]); err != nil {
			return n + n1, err
		}
		n += n1
	}
	return n, nil
}
