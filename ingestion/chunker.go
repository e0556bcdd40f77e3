// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingestion

import (
	"unicode"

	"github.com/poiesic/recall/core"
)

const (
	// DefaultChunkSize is the target chunk length in runes.
	DefaultChunkSize = 800

	// DefaultChunkOverlap is how many runes consecutive chunks share.
	DefaultChunkOverlap = 100
)

// Chunker splits normalized document content into overlapping chunks on
// word boundaries. Chunking is deterministic: the same content always
// yields the same chunk texts and spans, which keeps chunk identities
// stable across re-ingestion.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker with the given target size and overlap
// in runes. Non-positive or inconsistent values fall back to defaults.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits content into chunks with spans holding rune offsets into
// the content. Empty content yields no chunks.
func (c *Chunker) Chunk(content string) []*core.Chunk {
	runes := []rune(content)
	if len(runes) == 0 {
		return nil
	}

	var chunks []*core.Chunk
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakAt(runes, start, end)
		}

		text, span := trimSpan(runes, start, end)
		if text != "" {
			chunks = append(chunks, &core.Chunk{
				Seq:  len(chunks),
				Text: text,
				Span: span,
			})
		}

		if end == len(runes) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// breakAt moves the cut point back to the nearest word boundary, never
// retreating past the midpoint of the chunk.
func breakAt(runes []rune, start, end int) int {
	limit := start + (end-start)/2
	for i := end; i > limit; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	// A single unbroken word longer than half a chunk; cut mid-word.
	return end
}

// trimSpan strips leading and trailing whitespace from the window and
// returns the remaining text with its span in rune offsets.
func trimSpan(runes []rune, start, end int) (string, core.Span) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	return string(runes[start:end]), core.Span{Start: start, End: end}
}
