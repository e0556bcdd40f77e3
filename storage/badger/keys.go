package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/recall/core"
)

// Key prefixes for different data types
const (
	documentPrefix   = "docrec"
	chunkPrefix      = "chkrec"
	docChunkPrefix   = "docchk"
	jobPrefix        = "jobrec"
	jobPendingPrefix = "jobpen"
	jobIDSeq         = "jobseq"
	payloadPrefix    = "payrec"
	deadLetterPrefix = "dlqrec"
)

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", documentPrefix, id))
}

// makeChunkKey generates a key for a chunk by ID.
func makeChunkKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", chunkPrefix, id))
}

// makeDocChunkKey generates a composite key for the document-to-chunk index.
// Format: prefix:documentID:seq
func makeDocChunkKey(docID core.ID, seq int) []byte {
	prefix := docChunkPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 16 // 8 bytes for documentID + 8 bytes for seq
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(docID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(seq))
	return buf
}

// makePartialDocChunkKey generates a partial key for iterating a document's chunks.
// Format: prefix:documentID
func makePartialDocChunkKey(docID core.ID) []byte {
	prefix := docChunkPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(docID))
	return buf
}

// makeJobKey generates a key for a job by ID.
func makeJobKey(id string) []byte {
	return []byte(jobPrefix + ":" + id)
}

// makeJobPendingKey generates a key for the pending-queue index.
// Format: prefix:seq, BigEndian so iteration yields enqueue order.
func makeJobPendingKey(seq uint64) []byte {
	prefix := jobPendingPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// makePayloadKey generates a key for a job payload by reference.
func makePayloadKey(ref string) []byte {
	return []byte(payloadPrefix + ":" + ref)
}

// makeDeadLetterKey generates a key for a dead letter by job ID.
func makeDeadLetterKey(jobID string) []byte {
	return []byte(deadLetterPrefix + ":" + jobID)
}
